package chat

// Response copy per template id and language. Lookups fall back to the
// configured default language, then to English. Placeholders use {name}
// syntax and are expanded from the action params.
var templates = map[string]map[string]string{
	"greeting": {
		"en": "Welcome to Marhaba! I can help you explore Egypt: attractions, hotels, restaurants, events and weather. What would you like to know?",
		"ar": "أهلاً بك في مرحبا! يمكنني مساعدتك في استكشاف مصر: المعالم السياحية والفنادق والمطاعم والفعاليات والطقس. كيف يمكنني مساعدتك؟",
	},
	"goodbye": {
		"en": "Goodbye! Enjoy your time in Egypt.",
		"ar": "مع السلامة! نتمنى لك إقامة ممتعة في مصر.",
	},
	"thanks_reply": {
		"en": "You're welcome! Anything else you'd like to know?",
		"ar": "على الرحب والسعة! هل تود معرفة شيء آخر؟",
	},
	"help": {
		"en": "You can ask me about attractions, destinations, hotels, restaurants, events, transport and weather. For example: \"Tell me about the Pyramids of Giza\".",
		"ar": "يمكنك سؤالي عن المعالم السياحية والمدن والفنادق والمطاعم والفعاليات والمواصلات والطقس. مثال: \"أخبرني عن أهرامات الجيزة\".",
	},
	"apology": {
		"en": "Sorry, something went wrong on our side. Please try again.",
		"ar": "عذراً، حدث خطأ من جانبنا. حاول مرة أخرى من فضلك.",
	},
	"apology_timeout": {
		"en": "Sorry, that took longer than expected. Please try again.",
		"ar": "عذراً، استغرق الأمر وقتاً أطول من المتوقع. حاول مرة أخرى من فضلك.",
	},
	"apology_unavailable": {
		"en": "Sorry, that service is not available right now. Please try again later.",
		"ar": "عذراً، هذه الخدمة غير متاحة حالياً. حاول مرة أخرى لاحقاً.",
	},
	"no_information": {
		"en": "I'm sorry, I don't have information about that yet.",
		"ar": "عذراً، لا أملك معلومات عن ذلك بعد.",
	},
	"no_results": {
		"en": "I couldn't find any matches in {destination}.",
		"ar": "لم أجد نتائج مطابقة في {destination}.",
	},
	"say_again": {
		"en": "I didn't catch that. Could you say it differently?",
		"ar": "لم أفهم ذلك. هل يمكنك إعادة الصياغة؟",
	},
	"ask_attraction": {
		"en": "Which attraction would you like to know about?",
		"ar": "أي معلم سياحي تود معرفة المزيد عنه؟",
	},
	"ask_destination": {
		"en": "Which city or destination do you mean?",
		"ar": "أي مدينة أو وجهة تقصد؟",
	},
	"entity_not_found": {
		"en": "I couldn't find {name} in my guide yet.",
		"ar": "لم أجد {name} في دليلي بعد.",
	},
	"search_results": {
		"en": "Here is what I found in {destination}:",
		"ar": "هذا ما وجدته في {destination}:",
	},
	"weather_report": {
		"en": "Right now in {destination}: {temperature}°C, {conditions}, wind {wind} km/h.",
		"ar": "الطقس الآن في {destination}: {temperature}°م، {conditions}، رياح {wind} كم/س.",
	},
}

// suggestionLabels localize the suggestion keys flow definitions use.
// Unknown keys pass through verbatim so customized flows can carry literal
// suggestion text.
var suggestionLabels = map[string]map[string]string{
	"top_attractions": {
		"en": "Top attractions in Cairo",
		"ar": "أشهر المعالم في القاهرة",
	},
	"find_hotel": {
		"en": "Find a hotel in Hurghada",
		"ar": "ابحث عن فندق في الغردقة",
	},
	"ask_weather": {
		"en": "What's the weather in Luxor?",
		"ar": "كيف الطقس في الأقصر؟",
	},
	"find_restaurant": {
		"en": "Restaurants in Alexandria",
		"ar": "مطاعم في الإسكندرية",
	},
	"getting_around": {
		"en": "How do I get around?",
		"ar": "كيف أتنقل؟",
	},
	"opening_hours": {
		"en": "Opening hours",
		"ar": "مواعيد العمل",
	},
	"ticket_prices": {
		"en": "Ticket prices",
		"ar": "أسعار التذاكر",
	},
	"local_food": {
		"en": "What local food should I try?",
		"ar": "ما الأكلات المحلية التي أجربها؟",
	},
}

// conditionLabels localize the weather condition buckets the weather
// provider reports.
var conditionLabels = map[string]map[string]string{
	"clear":         {"en": "clear skies", "ar": "صحو"},
	"partly_cloudy": {"en": "partly cloudy", "ar": "غائم جزئياً"},
	"cloudy":        {"en": "cloudy", "ar": "غائم"},
	"fog":           {"en": "fog", "ar": "ضباب"},
	"rain":          {"en": "rain", "ar": "مطر"},
	"snow":          {"en": "snow", "ar": "ثلوج"},
	"showers":       {"en": "showers", "ar": "زخات مطر"},
	"thunderstorm":  {"en": "thunderstorms", "ar": "عواصف رعدية"},
}
