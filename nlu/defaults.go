package nlu

// DefaultIntentExamples is the built-in bilingual training set. Callers
// with tuned utterances can pass their own set instead.
func DefaultIntentExamples() []IntentExample {
	return []IntentExample{
		{Intent: "greeting", Text: "hello"},
		{Intent: "greeting", Text: "hi there"},
		{Intent: "greeting", Text: "good morning"},
		{Intent: "greeting", Text: "hey marhaba"},
		{Intent: "greeting", Text: "مرحبا"},
		{Intent: "greeting", Text: "السلام عليكم"},
		{Intent: "greeting", Text: "صباح الخير"},

		{Intent: "farewell", Text: "goodbye"},
		{Intent: "farewell", Text: "bye for now"},
		{Intent: "farewell", Text: "see you later"},
		{Intent: "farewell", Text: "مع السلامة"},
		{Intent: "farewell", Text: "إلى اللقاء"},

		{Intent: "thanks", Text: "thank you"},
		{Intent: "thanks", Text: "thanks a lot"},
		{Intent: "thanks", Text: "شكرا جزيلا"},
		{Intent: "thanks", Text: "شكرا لك"},

		{Intent: "attraction_info", Text: "tell me about the pyramids of giza"},
		{Intent: "attraction_info", Text: "what is the sphinx"},
		{Intent: "attraction_info", Text: "information about karnak temple"},
		{Intent: "attraction_info", Text: "what can I see at the egyptian museum"},
		{Intent: "attraction_info", Text: "أخبرني عن أهرامات الجيزة"},
		{Intent: "attraction_info", Text: "ما هو أبو الهول"},
		{Intent: "attraction_info", Text: "معلومات عن معبد الكرنك"},

		{Intent: "destination_info", Text: "what should I know about luxor"},
		{Intent: "destination_info", Text: "is aswan worth visiting"},
		{Intent: "destination_info", Text: "tell me about cairo as a city"},
		{Intent: "destination_info", Text: "ماذا أعرف عن الأقصر"},
		{Intent: "destination_info", Text: "هل تستحق أسوان الزيارة"},

		{Intent: "restaurant_search", Text: "where can I eat koshary"},
		{Intent: "restaurant_search", Text: "find me a restaurant in cairo"},
		{Intent: "restaurant_search", Text: "good places for dinner near the nile"},
		{Intent: "restaurant_search", Text: "أين يمكنني تناول الكشري"},
		{Intent: "restaurant_search", Text: "ابحث عن مطعم في القاهرة"},

		{Intent: "hotel_search", Text: "I need a hotel in hurghada"},
		{Intent: "hotel_search", Text: "find accommodation near the pyramids"},
		{Intent: "hotel_search", Text: "book a room in sharm el sheikh"},
		{Intent: "hotel_search", Text: "أحتاج فندق في الغردقة"},
		{Intent: "hotel_search", Text: "ابحث عن إقامة قرب الأهرامات"},

		{Intent: "event_search", Text: "what events are on this week"},
		{Intent: "event_search", Text: "any festivals in cairo tonight"},
		{Intent: "event_search", Text: "ما الفعاليات الموجودة هذا الأسبوع"},
		{Intent: "event_search", Text: "هل هناك مهرجانات في القاهرة الليلة"},

		{Intent: "transport_info", Text: "how do I get from cairo to luxor"},
		{Intent: "transport_info", Text: "is there a train to alexandria"},
		{Intent: "transport_info", Text: "كيف أصل من القاهرة إلى الأقصر"},
		{Intent: "transport_info", Text: "هل يوجد قطار إلى الإسكندرية"},

		{Intent: "weather_query", Text: "what is the weather like in cairo"},
		{Intent: "weather_query", Text: "will it be hot in luxor tomorrow"},
		{Intent: "weather_query", Text: "كيف الطقس في القاهرة"},
		{Intent: "weather_query", Text: "هل سيكون الجو حارا في الأقصر غدا"},

		{Intent: "price_query", Text: "how much does a ticket cost"},
		{Intent: "price_query", Text: "what is the entrance fee for the pyramids"},
		{Intent: "price_query", Text: "كم سعر التذكرة"},
		{Intent: "price_query", Text: "كم رسوم دخول الأهرامات"},

		{Intent: "help", Text: "what can you do"},
		{Intent: "help", Text: "help me plan my trip"},
		{Intent: "help", Text: "ماذا يمكنك أن تفعل"},
		{Intent: "help", Text: "ساعدني في تخطيط رحلتي"},
	}
}

// DefaultGazetteer covers the well-known Egyptian places the assistant is
// asked about most. Latin-script names match any language since visitors
// mix them into Arabic text; Arabic-script names only occur in Arabic.
func DefaultGazetteer() []GazetteerEntry {
	return []GazetteerEntry{
		{Surface: "Pyramids of Giza", Type: EntityAttraction},
		{Surface: "the pyramids", Type: EntityAttraction},
		{Surface: "Great Sphinx", Type: EntityAttraction},
		{Surface: "the sphinx", Type: EntityAttraction},
		{Surface: "Egyptian Museum", Type: EntityAttraction},
		{Surface: "Karnak Temple", Type: EntityAttraction},
		{Surface: "Luxor Temple", Type: EntityAttraction},
		{Surface: "Valley of the Kings", Type: EntityAttraction},
		{Surface: "Abu Simbel", Type: EntityAttraction},
		{Surface: "Khan el-Khalili", Type: EntityAttraction},
		{Surface: "Citadel of Saladin", Type: EntityAttraction},
		{Surface: "Philae Temple", Type: EntityAttraction},
		{Surface: "أهرامات الجيزة", Type: EntityAttraction, Language: "ar"},
		{Surface: "الأهرامات", Type: EntityAttraction, Language: "ar"},
		{Surface: "أبو الهول", Type: EntityAttraction, Language: "ar"},
		{Surface: "المتحف المصري", Type: EntityAttraction, Language: "ar"},
		{Surface: "معبد الكرنك", Type: EntityAttraction, Language: "ar"},
		{Surface: "معبد الأقصر", Type: EntityAttraction, Language: "ar"},
		{Surface: "وادي الملوك", Type: EntityAttraction, Language: "ar"},
		{Surface: "أبو سمبل", Type: EntityAttraction, Language: "ar"},
		{Surface: "خان الخليلي", Type: EntityAttraction, Language: "ar"},
		{Surface: "قلعة صلاح الدين", Type: EntityAttraction, Language: "ar"},

		{Surface: "Cairo", Type: EntityDestination},
		{Surface: "Giza", Type: EntityDestination},
		{Surface: "Luxor", Type: EntityDestination},
		{Surface: "Aswan", Type: EntityDestination},
		{Surface: "Alexandria", Type: EntityDestination},
		{Surface: "Hurghada", Type: EntityDestination},
		{Surface: "Sharm El Sheikh", Type: EntityDestination},
		{Surface: "Dahab", Type: EntityDestination},
		{Surface: "Siwa", Type: EntityDestination},
		{Surface: "القاهرة", Type: EntityDestination, Language: "ar"},
		{Surface: "الجيزة", Type: EntityDestination, Language: "ar"},
		{Surface: "الأقصر", Type: EntityDestination, Language: "ar"},
		{Surface: "أسوان", Type: EntityDestination, Language: "ar"},
		{Surface: "الإسكندرية", Type: EntityDestination, Language: "ar"},
		{Surface: "الغردقة", Type: EntityDestination, Language: "ar"},
		{Surface: "شرم الشيخ", Type: EntityDestination, Language: "ar"},
		{Surface: "دهب", Type: EntityDestination, Language: "ar"},
		{Surface: "سيوة", Type: EntityDestination, Language: "ar"},

		{Surface: "Abou El Sid", Type: EntityRestaurant},
		{Surface: "Koshary Abou Tarek", Type: EntityRestaurant},
		{Surface: "كشري أبو طارق", Type: EntityRestaurant, Language: "ar"},

		{Surface: "Abu Simbel Sun Festival", Type: EntityEvent},
		{Surface: "Cairo International Film Festival", Type: EntityEvent},
		{Surface: "مهرجان القاهرة السينمائي", Type: EntityEvent, Language: "ar"},
	}
}
