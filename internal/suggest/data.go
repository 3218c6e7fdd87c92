package suggest

var welcomeHeadings = []string{
	"Hey, ask away.",
	"Hey there, I'm ArunLM.",
	"Ask me anything.",
	"What would you like to know?",
	"Welcome to ArunLM.",
}

const defaultPage = "home"

var pagePools = map[string][]string{
	"home": {
		"What projects has Karthick built?",
		"Tell me about Aigenie",
		"What is Lucky?",
		"What's Karthick's background?",
		"What tech stack does Karthick use?",
		"How can I contact Karthick?",
		"What certifications does Karthick have?",
		"Tell me about KidCon",
	},
	"about": {
		"What are Karthick's interests?",
		"How can I contact Karthick?",
		"What certifications does Karthick have?",
		"Tell me about Karthick's achievements",
		"What's Karthick's education?",
		"What's Aigenie's mission?",
	},
	"fun": {
		"Tell me about Karthick's side projects",
		"What is Pando?",
		"What's SnakeID?",
		"What is DotClock?",
		"Tell me about Linguarush",
		"What is Jerry?",
	},
	"project": {
		"Tell me more about this project",
		"What tech was used in this project?",
		"What inspired this project?",
		"How does this project work?",
		"Is this project open source?",
	},
}

type keywordSet struct {
	keyword     string
	suggestions []string
}

var (
	cloudSet = []string{
		"What AWS certifications does Karthick have?",
		"Tell me about Kids Cloud Club",
		"What cloud technologies does Karthick use?",
	}
	podcastSet = []string{
		"What's The AI Tripod Podcast about?",
		"Where can I listen to The AI Tripod?",
		"What topics does the podcast cover?",
	}
	contactSet = []string{
		"How can I contact Karthick?",
		"What are Karthick's social links?",
		"What's the best way to reach Karthick?",
	}
)

// Ordered so that a seeded engine produces the same output on every run.
var keywordTable = []keywordSet{
	{"aigenie", []string{
		"What's Aigenie's mission?",
		"Tell me about Aigenie Enterprises",
		"What does Aigenie build?",
	}},
	{"lucky", []string{
		"What is Lucky?",
		"How does Lucky work?",
		"What accessibility features does Lucky have?",
	}},
	{"kidcon", []string{
		"What was KidCon?",
		"Tell me about KidCon 2021",
		"Why did Karthick organize KidCon?",
	}},
	{"dotclock", []string{
		"How does DotClock work?",
		"What inspired DotClock?",
		"Is DotClock open source?",
	}},
	{"opencitation", []string{
		"What is OpenCitation?",
		"How does OpenCitation work?",
		"What problem does OpenCitation solve?",
	}},
	{"awsbreak", []string{
		"What is AWSBreak?",
		"How does AWSBreak help with AWS prep?",
		"What AWS certifications does Karthick have?",
	}},
	{"snakeid", []string{
		"How does SnakeID work?",
		"What tech is behind SnakeID?",
		"What inspired SnakeID?",
	}},
	{"linguarush", []string{
		"How does Linguarush work?",
		"What languages does Linguarush support?",
		"What inspired Linguarush?",
	}},
	{"jerry", []string{
		"What is Jerry?",
		"How does Jerry work?",
		"What tech was used for Jerry?",
	}},
	{"pando", []string{
		"What is Pando?",
		"How does Pando work?",
		"What inspired Pando?",
	}},
	{"aws", cloudSet},
	{"cloud", cloudSet},
	{"design", []string{
		"How does Karthick balance design and engineering?",
		"What tools does Karthick use?",
		"What's Karthick's design process?",
	}},
	{"engineer", []string{
		"How does Karthick balance design and engineering?",
		"What tools does Karthick use?",
		"What's Karthick's engineering background?",
	}},
	{"podcast", podcastSet},
	{"tripod", podcastSet},
	{"contact", contactSet},
	{"email", contactSet},
}
