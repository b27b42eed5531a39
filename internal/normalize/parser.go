package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Salary range shapes seen in the wild, most specific first. 万 and w mean
// ten-thousand yuan per month, bare four-to-six digit numbers mean yuan.
var (
	salaryWanBoth = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*[万wW]\s*[-~至到]\s*(\d+(?:\.\d+)?)\s*[万wW]?`)
	salaryWanTail = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*[-~至到]\s*(\d+(?:\.\d+)?)\s*[万wW]`)
	salaryKBoth   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*k\s*[-~至到]\s*(\d+(?:\.\d+)?)\s*k?`)
	salaryKTail   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*[-~至到]\s*(\d+(?:\.\d+)?)\s*k`)
	salaryPlain   = regexp.MustCompile(`(\d{4,6})\s*[-~至到]\s*(\d{4,6})`)
)

// ParseSalary normalizes a scraped salary range to "NNk-NNk" text plus the
// bounds in thousands of yuan per month. Unparseable input passes through
// as text with zero bounds; zero means unknown to salary filters.
func ParseSalary(raw string) (text string, minK, maxK int) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0, 0
	}

	type form struct {
		re    *regexp.Regexp
		scale float64 // multiplier to thousands
	}
	forms := []form{
		{salaryWanBoth, 10},
		{salaryWanTail, 10},
		{salaryKBoth, 1},
		{salaryKTail, 1},
		{salaryPlain, 0.001},
	}
	for _, f := range forms {
		m := f.re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		low, err1 := strconv.ParseFloat(m[1], 64)
		high, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		minK, maxK = int(low*f.scale), int(high*f.scale)
		return fmt.Sprintf("%dk-%dk", minK, maxK), minK, maxK
	}
	return raw, 0, 0
}

var (
	expRange   = regexp.MustCompile(`(\d+)\s*[-~至到]\s*(\d+)\s*年`)
	expPlus    = regexp.MustCompile(`(\d+)\s*年以上`)
	expEnRange = regexp.MustCompile(`(?i)(\d+)\s*(?:-|~|to)\s*(\d+)\s*years?`)
)

var entryMarkers = []string{"经验不限", "不限经验", "无经验要求", "no experience", "entry level"}

// ParseExperience maps a scraped experience requirement to one of the
// normalized bands: "Entry Level", "N-M years", or "N+ years". Anything
// else comes back empty.
func ParseExperience(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	lower := strings.ToLower(raw)
	for _, marker := range entryMarkers {
		if strings.Contains(lower, marker) {
			return "Entry Level"
		}
	}
	if m := expRange.FindStringSubmatch(raw); m != nil {
		return m[1] + "-" + m[2] + " years"
	}
	if m := expPlus.FindStringSubmatch(raw); m != nil {
		return m[1] + "+ years"
	}
	if m := expEnRange.FindStringSubmatch(raw); m != nil {
		return m[1] + "-" + m[2] + " years"
	}
	return ""
}

// eduLevels run lowest first, so a line naming several degrees resolves to
// the minimum requirement.
var eduLevels = []struct {
	markers []string
	name    string
}{
	{[]string{"大专", "专科", "associate"}, "Associate"},
	{[]string{"本科", "学士", "bachelor"}, "Bachelor"},
	{[]string{"硕士", "master"}, "Master"},
	{[]string{"博士", "phd", "doctor"}, "PhD"},
}

// ParseEducation maps a scraped degree requirement to a normalized level.
// "No requirement" phrasings and anything unrecognized come back empty.
func ParseEducation(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	lower := strings.ToLower(raw)
	for _, level := range eduLevels {
		for _, marker := range level.markers {
			if strings.Contains(lower, marker) {
				return level.name
			}
		}
	}
	return ""
}

// cityNames translate the covered cities; districtNames translate the
// districts that commonly follow them after a ·. An unknown district falls
// back to the bare city.
var cityNames = []struct {
	zh, en, name string
}{
	{"北京", "beijing", "Beijing"},
	{"上海", "shanghai", "Shanghai"},
	{"广州", "guangzhou", "Guangzhou"},
	{"深圳", "shenzhen", "Shenzhen"},
}

var districtNames = []struct {
	zh, en string
}{
	{"海淀", "Haidian"},
	{"朝阳", "Chaoyang"},
	{"西城", "Xicheng"},
	{"东城", "Dongcheng"},
	{"丰台", "Fengtai"},
	{"石景山", "Shijingshan"},
	{"大兴", "Daxing"},
	{"通州", "Tongzhou"},
	{"昌平", "Changping"},
	{"顺义", "Shunyi"},
	{"浦东", "Pudong"},
	{"徐汇", "Xuhui"},
	{"静安", "Jing'an"},
	{"闵行", "Minhang"},
	{"天河", "Tianhe"},
	{"越秀", "Yuexiu"},
	{"海珠", "Haizhu"},
	{"南山", "Nanshan"},
	{"福田", "Futian"},
	{"宝安", "Bao'an"},
	{"龙岗", "Longgang"},
}

// NormalizeLocation maps scraped location text to "City" or
// "City, District" in English for the covered cities and passes anything
// else through trimmed.
func NormalizeLocation(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	lower := strings.ToLower(text)
	for _, city := range cityNames {
		if !strings.Contains(text, city.zh) && !strings.Contains(lower, city.en) {
			continue
		}
		for _, d := range districtNames {
			if strings.Contains(text, d.zh) {
				return city.name + ", " + d.en
			}
		}
		return city.name
	}
	return text
}

// maxTags caps how many skill tags one posting carries.
const maxTags = 10

type tagRule struct {
	canonical  string
	re         *regexp.Regexp
	subsumedBy string // skip when this canonical already matched
}

// tagRules match known technologies on word boundaries, so "Django" does
// not produce a Go tag and "JavaScript" does not produce Java. Aliases
// collapse to one canonical name.
var tagRules = buildTagRules()

func buildTagRules() []tagRule {
	defs := []struct {
		canonical, pattern string
		caseSensitive      bool
		subsumedBy         string
	}{
		{canonical: "Python", pattern: `python`},
		{canonical: "JavaScript", pattern: `javascript`},
		{canonical: "TypeScript", pattern: `typescript`},
		{canonical: "Java", pattern: `java`},
		{canonical: "Go", pattern: `go(?:lang)?`},
		{canonical: "Rust", pattern: `rust`},
		{canonical: "C++", pattern: `c\+\+`},
		{canonical: "C#", pattern: `c#`},
		{canonical: "Ruby", pattern: `ruby`},
		{canonical: "PHP", pattern: `php`},
		{canonical: "Swift", pattern: `swift`},
		{canonical: "Kotlin", pattern: `kotlin`},
		{canonical: "React", pattern: `react`},
		{canonical: "Vue", pattern: `vue`},
		{canonical: "Angular", pattern: `angular`},
		{canonical: "Node.js", pattern: `node\.js`},
		{canonical: "Django", pattern: `django`},
		{canonical: "Flask", pattern: `flask`},
		{canonical: "FastAPI", pattern: `fastapi`},
		{canonical: "Spring Boot", pattern: `spring\s?boot`},
		{canonical: "Spring", pattern: `spring`, subsumedBy: "Spring Boot"},
		{canonical: "Docker", pattern: `docker`},
		{canonical: "Kubernetes", pattern: `k(?:ubernetes|8s)`},
		{canonical: "AWS", pattern: `aws`},
		{canonical: "Azure", pattern: `azure`},
		{canonical: "GCP", pattern: `gcp`},
		{canonical: "MySQL", pattern: `mysql`},
		{canonical: "PostgreSQL", pattern: `postgresql`},
		{canonical: "MongoDB", pattern: `mongodb`},
		{canonical: "Redis", pattern: `redis`},
		{canonical: "Elasticsearch", pattern: `elasticsearch`},
		{canonical: "Kafka", pattern: `kafka`},
		{canonical: "RabbitMQ", pattern: `rabbitmq`},
		{canonical: "Linux", pattern: `linux`},
		{canonical: "Git", pattern: `git`},
		{canonical: "CI/CD", pattern: `ci/cd`},
		{canonical: "DevOps", pattern: `devops`},
		{canonical: "Microservices", pattern: `microservices?`},
		// Case-sensitive: lowercase "rest" is ordinary English.
		{canonical: "REST", pattern: `REST(?:ful)?`, caseSensitive: true},
		{canonical: "GraphQL", pattern: `graphql`},
		{canonical: "gRPC", pattern: `grpc`},
		{canonical: "Machine Learning", pattern: `machine\s+learning`},
		{canonical: "Deep Learning", pattern: `deep\s+learning`},
		{canonical: "TensorFlow", pattern: `tensorflow`},
		{canonical: "PyTorch", pattern: `pytorch`},
		{canonical: "NLP", pattern: `nlp`},
		{canonical: "Computer Vision", pattern: `computer\s+vision`},
	}
	rules := make([]tagRule, len(defs))
	for i, d := range defs {
		prefix := `(?i)`
		if d.caseSensitive {
			prefix = ``
		}
		rules[i] = tagRule{
			canonical:  d.canonical,
			re:         regexp.MustCompile(prefix + `(?:^|[^a-zA-Z0-9])` + d.pattern + `(?:[^a-zA-Z0-9]|$)`),
			subsumedBy: d.subsumedBy,
		}
	}
	return rules
}

// ExtractTags pulls known technology names out of free text, deduplicated
// in rule order and capped at maxTags.
func ExtractTags(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var tags []string
	seen := make(map[string]bool)
	for _, rule := range tagRules {
		if rule.subsumedBy != "" && seen[rule.subsumedBy] {
			continue
		}
		if !rule.re.MatchString(text) {
			continue
		}
		seen[rule.canonical] = true
		tags = append(tags, rule.canonical)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}
