package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marhaba-ai/marhaba/common"
)

func TestValidateRejectsOversizeMessage(t *testing.T) {
	req := Request{Message: strings.Repeat("a", MaxMessageBytes+1)}

	err := req.Validate([]string{"en"})
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindBadInput))
}

func TestValidateSizeCheckPrecedesTrim(t *testing.T) {
	// A message of nothing but padding is still over the wire limit.
	req := Request{Message: strings.Repeat(" ", MaxMessageBytes+1)}

	err := req.Validate([]string{"en"})
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindBadInput))
}

func TestValidateNormalizes(t *testing.T) {
	req := Request{Message: "  hello  ", Language: " EN "}

	require.NoError(t, req.Validate([]string{"en", "ar"}))
	assert.Equal(t, "hello", req.Message)
	assert.Equal(t, "en", req.Language)
}

func TestValidateRejectsUnsupportedLanguage(t *testing.T) {
	req := Request{Message: "hola", Language: "es"}

	err := req.Validate([]string{"en", "ar"})
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindBadInput))
}

func TestValidateAllowsEmptyMessage(t *testing.T) {
	req := Request{Message: "   "}

	require.NoError(t, req.Validate([]string{"en"}))
	assert.Empty(t, req.Message)
}
