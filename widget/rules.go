package widget

import (
	"regexp"
	"strings"

	"github.com/canvass/canvass/model"
)

// MatchesPage decides whether a page is eligible for a survey under its page
// rules. The default posture is deny: no rules, or no include rules, means no
// match. An exclude match always wins over an include match.
func MatchesPage(pageURL, pathname string, rules []model.PageRule) bool {
	if len(rules) == 0 {
		return false
	}

	var includes []model.PageRule
	for _, rule := range rules {
		if rule.RuleType == model.RuleExclude {
			if ruleMatches(rule, pageURL, pathname) {
				return false
			}
		} else {
			includes = append(includes, rule)
		}
	}

	for _, rule := range includes {
		if ruleMatches(rule, pageURL, pathname) {
			return true
		}
	}
	return false
}

func ruleMatches(rule model.PageRule, pageURL, pathname string) bool {
	if rule.IsRegex {
		// a broken pattern only disables this one rule
		re, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			return false
		}
		return re.MatchString(pageURL) || re.MatchString(pathname)
	}
	return strings.Contains(pageURL, rule.Pattern) || strings.Contains(pathname, rule.Pattern)
}
