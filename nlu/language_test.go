package nlu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLanguageDetector_Detect(t *testing.T) {
	d := NewLanguageDetector([]string{"en", "ar"})

	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "English", text: "Where can I find the best koshary restaurant in downtown Cairo?", want: "en"},
		{name: "Arabic", text: "أين يمكنني أن أجد أفضل مطعم كشري في وسط القاهرة؟", want: "ar"},
		{name: "UnsupportedJapanese", text: "こんにちは、お元気ですか。エジプトへようこそ。", want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lang, conf := d.Detect(tc.text)
			assert.Equal(t, tc.want, lang)
			if tc.want == "" {
				assert.Zero(t, conf)
			} else {
				assert.Positive(t, conf)
			}
		})
	}
}

func TestLanguageDetector_RestrictsToSupportedSet(t *testing.T) {
	d := NewLanguageDetector([]string{"en"})

	lang, conf := d.Detect("أهلا وسهلا بكم في جمهورية مصر العربية")
	assert.Empty(t, lang, "Arabic is outside the supported set")
	assert.Zero(t, conf)

	assert.True(t, d.Supported("en"))
	assert.False(t, d.Supported("ar"))
}

func TestLanguageDetector_DropsUnparsableCodes(t *testing.T) {
	d := NewLanguageDetector([]string{"not a code!", "ar"})
	assert.False(t, d.Supported("not a code!"))
	assert.True(t, d.Supported("ar"))

	lang, _ := d.Detect("شكرا جزيلا على المساعدة الرائعة")
	assert.Equal(t, "ar", lang)
}

func TestLanguageDetector_EmptySupportedFallsBackToEnglish(t *testing.T) {
	d := NewLanguageDetector(nil)
	require.True(t, d.Supported("en"))

	lang, _ := d.Detect("The Egyptian Museum holds the treasures of Tutankhamun.")
	assert.Equal(t, "en", lang)
}
