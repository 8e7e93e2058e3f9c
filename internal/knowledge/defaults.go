package knowledge

import "personabot/internal/domain"

// DefaultCases returns the built-in success stories. Real deployments replace
// these by editing the knowledge directory and reloading.
func DefaultCases() []domain.SuccessCase {
	return []domain.SuccessCase{
		{
			ID:          "case_001",
			Title:       "From zero followers to a steady side income in six months",
			Profile:     "Parent of two, complete beginner",
			Genre:       "Everyday cooking and lunchbox recipes",
			Situation:   "No account, no audience, and only the hour or two after the kids were asleep",
			Achievement: "20k followers and a reliable monthly income, plus brand collaborations",
			Period:      "six months",
			Points:      "Turned the lunches she already made every day into content, then tightened photo style and posting times with coach feedback",
			Personas:    []domain.Persona{domain.PersonaStayHomeParent, domain.PersonaSideHustler},
			Keywords:    []string{"home", "kids", "cooking", "recipes", "beginner", "parent"},
		},
		{
			ID:          "case_002",
			Title:       "Building a second income around a full-time office job",
			Profile:     "Office worker in his forties",
			Genre:       "Business and self-improvement content",
			Situation:   "500 followers after a year of self-taught posting, busy weekdays, growth had stalled",
			Achievement: "15k followers and a dependable side income while keeping his job",
			Period:      "six months",
			Points:      "Batch-produced posts on weekends and used the commute and lunch break for engagement, on a schedule built around the day job",
			Personas:    []domain.Persona{domain.PersonaSideHustler},
			Keywords:    []string{"side", "job", "office", "commute", "business", "schedule", "stalled"},
		},
		{
			ID:          "case_003",
			Title:       "Complete beginner to 5,000 followers in three months",
			Profile:     "Part-time worker in her thirties",
			Genre:       "Fitness and weight-loss diary",
			Situation:   "Had never opened the app; started casually to document her own progress",
			Achievement: "5,000 followers in three months and first affiliate income",
			Period:      "three months",
			Points:      "Posted her own before-and-after journey in real time, which drew followers with the same goal",
			Personas:    []domain.Persona{domain.PersonaStayHomeParent, domain.PersonaSelfSeeker},
			Keywords:    []string{"beginner", "fitness", "diet", "progress", "first"},
		},
		{
			ID:          "case_004",
			Title:       "Doubling monthly store visits for a local salon",
			Profile:     "Salon owner in her forties",
			Genre:       "Beauty and local business",
			Situation:   "Paid ads were not bringing in new clients for her small-town salon",
			Achievement: "8k followers, twice the monthly visits, ad spend cut in half",
			Period:      "four months",
			Points:      "Posted treatment results on a fixed cadence and used location tags to reach nearby customers",
			Personas:    []domain.Persona{domain.PersonaBusinessOwner},
			Keywords:    []string{"salon", "store", "clients", "visits", "ads", "local", "owner"},
		},
		{
			ID:          "case_005",
			Title:       "Turning a handmade-jewelry hobby into a paying craft business",
			Profile:     "Aspiring maker in her thirties",
			Genre:       "Handmade crafts",
			Situation:   "Made accessories as a hobby but doubted anyone would ever buy them",
			Achievement: "12k followers and steady monthly sales through an online shop",
			Period:      "six months",
			Points:      "Filmed the making process to build attachment to each piece, then fixed product photos and pricing with coach input",
			Personas:    []domain.Persona{domain.PersonaStayHomeParent, domain.PersonaSelfSeeker},
			Keywords:    []string{"handmade", "craft", "hobby", "jewelry", "sell", "passion"},
		},
	}
}

// DefaultFAQs returns the built-in FAQ records.
func DefaultFAQs() []domain.FAQ {
	return []domain.FAQ{
		{
			ID:       "faq_001",
			Category: "program",
			Question: "Is this okay for a complete beginner?",
			Answer:   "Absolutely. Around eight in ten of our students start with almost no experience. Your coach covers the basics one-on-one, from growing an audience to putting a post together.",
			Personas: []domain.Persona{domain.PersonaAll},
			Keywords: []string{"beginner", "experience", "nervous", "okay", "start"},
		},
		{
			ID:       "faq_002",
			Category: "pricing",
			Question: "How much does the program cost?",
			Answer:   "The six-month program has a single fee, and installment plans are available. Most students recoup the investment within the program period. A consultant walks through the details in the individual consultation.",
			Personas: []domain.Persona{domain.PersonaAll},
			Keywords: []string{"price", "cost", "fee", "much", "pay"},
		},
		{
			ID:       "faq_003",
			Category: "pricing",
			Question: "Can I pay in installments?",
			Answer:   "Yes, installment plans are available. The consultation covers the payment options, so feel free to ask there.",
			Personas: []domain.Persona{domain.PersonaAll},
			Keywords: []string{"installments", "monthly", "payment", "plan"},
		},
		{
			ID:       "faq_004",
			Category: "support",
			Question: "What support do I get?",
			Answer:   "A dedicated coach works with you one-on-one: a weekly video call, message support with replies within a day, and a monthly group seminar. You are never left to figure things out alone.",
			Personas: []domain.Persona{domain.PersonaAll},
			Keywords: []string{"support", "coach", "help", "questions"},
		},
		{
			ID:       "faq_005",
			Category: "time",
			Question: "Can I fit this around a job or children?",
			Answer:   "Most of our students do. Thirty minutes to an hour a day is enough, and your coach helps you build a routine around the time you actually have.",
			Personas: []domain.Persona{domain.PersonaSideHustler, domain.PersonaStayHomeParent},
			Keywords: []string{"time", "busy", "job", "children", "kids", "balance"},
		},
		{
			ID:       "faq_006",
			Category: "results",
			Question: "Will I really be able to earn from this?",
			Answer:   "Results vary, but students who follow the curriculum consistently do see income. What matters is the right method applied steadily, and your coach tailors the plan to your situation.",
			Personas: []domain.Persona{domain.PersonaAll},
			Keywords: []string{"earn", "income", "money", "really", "results"},
		},
		{
			ID:       "faq_007",
			Category: "program",
			Question: "Does my topic matter? Can any niche work?",
			Answer:   "Students succeed in cooking, fitness, beauty, parenting, business, crafts and more. Choosing a niche that fits what you enjoy is the first thing your coach helps with.",
			Personas: []domain.Persona{domain.PersonaAll},
			Keywords: []string{"niche", "topic", "genre", "theme"},
		},
		{
			ID:       "faq_008",
			Category: "seminar",
			Question: "What is the free seminar about?",
			Answer:   "The free seminar is about ninety minutes covering the fundamentals: how audiences grow and how an account turns into income, with plenty of real student examples.",
			Personas: []domain.Persona{domain.PersonaAll},
			Keywords: []string{"seminar", "webinar", "free", "about"},
		},
		{
			ID:       "faq_009",
			Category: "consultation",
			Question: "What happens in the individual consultation?",
			Answer:   "We hear out your current situation and goals and sketch a strategy together, and explain the program details. There is no pushy selling.",
			Personas: []domain.Persona{domain.PersonaAll},
			Keywords: []string{"consultation", "call", "meeting"},
		},
		{
			ID:       "faq_010",
			Category: "other",
			Question: "Do I have to show my face?",
			Answer:   "Not at all. Plenty of students grow large accounts without ever appearing on camera, using illustrations, hands-only shots, and similar formats.",
			Personas: []domain.Persona{domain.PersonaAll},
			Keywords: []string{"face", "camera", "anonymous", "privacy"},
		},
	}
}
