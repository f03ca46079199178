package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testStruct struct {
	Name     string `validate:"required"`
	Code     string `validate:"omitempty,max=10"`
	Priority int    `validate:"gte=0,lte=100"`
	Scope    string `validate:"omitempty,oneof=cart checkout preview"`
}

func TestValidate_Success(t *testing.T) {
	s := testStruct{Name: "Summer Ten", Code: "SUMMER10", Priority: 5, Scope: "cart"}
	err := Validate(s)
	assert.NoError(t, err)
}

func TestValidate_MissingRequired(t *testing.T) {
	s := testStruct{Priority: 5}
	err := Validate(s)
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Contains(t, fields, "Name")
	assert.Equal(t, "is required", fields["Name"])
}

func TestValidate_OutOfRange(t *testing.T) {
	s := testStruct{Name: "Summer Ten", Priority: 200}
	err := Validate(s)
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Contains(t, fields, "Priority")
	assert.Contains(t, fields["Priority"], "100")
}

func TestValidate_OneOf(t *testing.T) {
	s := testStruct{Name: "Summer Ten", Scope: "backdoor"}
	err := Validate(s)
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Contains(t, fields, "Scope")
	assert.Contains(t, fields["Scope"], "cart checkout preview")
}

func TestValidate_MultipleErrors(t *testing.T) {
	s := testStruct{Code: "WAY-TOO-LONG-CODE", Priority: -1}
	err := Validate(s)
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Contains(t, fields, "Name")
	assert.Contains(t, fields, "Code")
	assert.Contains(t, fields, "Priority")
}

func TestValidationError_ErrorString(t *testing.T) {
	s := testStruct{}
	err := Validate(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field 'Name'")
	assert.Contains(t, err.Error(), "is required")
}
