package monitor

import (
	"regexp"
	"strings"
)

// Filter categories, checked in this order.
const (
	FilterAd           = "ad"
	FilterAdult        = "adult"
	FilterBotAdmission = "bot-admission"
	FilterSpam         = "spam"
)

var adWords = []string{
	"推广", "广告", "代理", "加盟", "招商", "返利", "优惠券", "限时折扣", "带单",
	"稳赚", "包赔", "内部消息", "导师带你", "开户返佣",
	"promo code", "limited offer", "guaranteed profit", "100% win", "signup bonus",
	"referral link", "double your money",
}

var adultWords = []string{
	"色情", "约炮", "裸聊", "福利姬", "成人视频", "一夜情",
	"porn", "onlyfans", "nsfw content", "adult video", "escort service",
}

var botAdmissionWords = []string{
	"点击加群", "入群验证", "私聊机器人", "扫码进群", "回复关键词入群", "进群领取",
	"click to join", "verify to enter", "dm the bot", "join via bot",
}

var spamWords = []string{
	"刷单", "兼职日结", "躺赚", "暴富", "薅羊毛", "空投糖果", "注册送",
	"free airdrop claim", "send seed phrase", "wallet validation", "giveaway winner",
}

var spamRegexes = []*regexp.Regexp{
	// Invite shorteners and deep links.
	regexp.MustCompile(`(?i)\bt\.me/(joinchat|\+)[A-Za-z0-9_-]+`),
	regexp.MustCompile(`(?i)\b(bit\.ly|tinyurl\.com|cutt\.ly|is\.gd)/\S+`),
	// Raw chat-id leakage.
	regexp.MustCompile(`-100\d{9,13}`),
	// Long runs of non-target-script text (cyrillic, arabic, thai).
	regexp.MustCompile(`[\x{0400}-\x{04FF}\x{0600}-\x{06FF}\x{0E00}-\x{0E7F}]{30,}`),
}

// ContentFilter is the deterministic rule-based classifier used by the
// ingest pipeline and by the compressor's clean stage.
type ContentFilter struct{}

// NewContentFilter returns the shared classifier.
func NewContentFilter() *ContentFilter { return &ContentFilter{} }

// Classify returns the first matching filter category, or "".
func (f *ContentFilter) Classify(text string) string {
	lower := strings.ToLower(text)
	for _, c := range []struct {
		name  string
		words []string
	}{
		{FilterAd, adWords},
		{FilterAdult, adultWords},
		{FilterBotAdmission, botAdmissionWords},
		{FilterSpam, spamWords},
	} {
		for _, w := range c.words {
			if strings.Contains(lower, w) {
				return c.name
			}
		}
	}
	for _, re := range spamRegexes {
		if re.MatchString(text) {
			return FilterSpam
		}
	}
	return ""
}

// Reject reports whether the text should be dropped, with the category as
// the reason. Satisfies the compressor's TextFilter interface.
func (f *ContentFilter) Reject(text string) (bool, string) {
	if cat := f.Classify(text); cat != "" {
		return true, cat
	}
	return false, ""
}
