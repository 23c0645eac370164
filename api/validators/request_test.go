package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/linguamate-backend/pkg/errors"
)

type usagePayload struct {
	Conversations *int64  `json:"conversations" validate:"omitempty,gte=0"`
	Email         *string `json:"email" validate:"omitempty,email"`
}

func TestDecodeJSONBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"conversations":2}`))
	var body usagePayload
	require.NoError(t, DecodeJSONBody(req, &body))
	require.NotNil(t, body.Conversations)
	assert.Equal(t, int64(2), *body.Conversations)
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"tokens":2}`))
	var body usagePayload
	err := DecodeJSONBody(req, &body)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"conversations":-1,"email":"nope"}`))
	var body usagePayload
	err := DecodeJSONBody(req, &body)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Equal(t, map[string]string{
		"conversations": "must be greater than or equal to 0",
		"email":         "must be a valid email",
	}, typed.Details())
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=5", nil)
	v, err := ParseQueryInt(req, "limit", 10, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	v, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/", nil), "limit", 10, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	_, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?limit=500", nil), "limit", 10, 1, 50)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyEmptyBodyIsEmptyObject(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("  "))
	var body usagePayload
	require.NoError(t, DecodeJSONBody(req, &body))
	assert.Nil(t, body.Conversations)
}

func TestDecodeJSONBodyRejectsTrailingDataAndOversize(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"conversations":1}{"conversations":2}`))
	var body usagePayload
	assert.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &body), pkgerrors.CodeValidation))

	big := `{"email":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	err := DecodeJSONBody(req, &body)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Contains(t, typed.Message(), "exceeds")
}

func TestDecodeJSONBodyNamesMistypedField(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"conversations":"three"}`))
	var body usagePayload
	typed := pkgerrors.As(DecodeJSONBody(req, &body))
	require.NotNil(t, typed)
	assert.Equal(t, map[string]string{"conversations": "must be a int64"}, typed.Details())
}

func TestParseQueryIntRejectsGarbage(t *testing.T) {
	_, err := ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?limit=ten", nil), "limit", 10, 1, 50)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, map[string]string{"limit": "must be an integer"}, typed.Details())
}
