// Package compress turns raw cached messages into structured, scored,
// categorized artifacts ready for report generation.
package compress

import (
	"regexp"
	"sort"
	"strings"
)

// Market categories. "general" is the fallback when nothing matches.
const (
	CatCrypto  = "crypto"
	CatAStock  = "a_stock"
	CatUSStock = "us_stock"
	CatHKStock = "hk_stock"
	CatFutures = "futures"
	CatForex   = "forex"
	CatGeneral = "general"
)

// Sentiment labels.
const (
	SentimentBullish = "bullish"
	SentimentBearish = "bearish"
	SentimentNeutral = "neutral"
)

// categoryWords holds CJK and Latin keywords per closed market domain.
// Latin entries are matched case-insensitively.
var categoryWords = map[string][]string{
	CatCrypto: {
		"btc", "eth", "sol", "bitcoin", "ethereum", "binance", "defi", "nft",
		"usdt", "usdc", "altcoin", "stablecoin", "halving", "airdrop", "memecoin",
		"比特币", "以太坊", "加密货币", "稳定币", "空投", "链上", "矿工", "减半", "山寨币", "合约爆仓",
	},
	CatAStock: {
		"a股", "上证", "深证", "沪指", "创业板", "科创板", "北向资金", "涨停", "跌停",
		"两市", "券商", "融资融券", "沪深300", "中证", "国家队",
	},
	CatUSStock: {
		"nasdaq", "s&p", "sp500", "dow", "fed", "fomc", "nvidia", "tesla", "earnings",
		"美股", "纳斯达克", "标普", "道指", "美联储", "财报", "降息", "加息", "非农",
	},
	CatHKStock: {
		"hsi", "hang seng", "港股", "恒指", "恒生", "港交所", "南向资金", "恒科",
	},
	CatFutures: {
		"crude", "brent", "wti", "gold", "silver", "copper", "futures",
		"期货", "原油", "黄金", "白银", "铜价", "大宗商品", "螺纹钢", "铁矿石", "天然气",
	},
	CatForex: {
		"usd", "eur", "jpy", "gbp", "dxy", "forex",
		"外汇", "汇率", "美元指数", "日元", "欧元", "人民币", "离岸", "央行",
	},
}

var bullishWords = []string{
	"bullish", "pump", "rally", "surge", "breakout", "moon", "ath", "soar",
	"看多", "利好", "上涨", "大涨", "暴涨", "突破", "新高", "反弹", "爆发", "飙升",
}

var bearishWords = []string{
	"bearish", "dump", "crash", "plunge", "selloff", "collapse", "liquidation",
	"看空", "利空", "下跌", "大跌", "暴跌", "新低", "崩盘", "跳水", "抛售", "清算",
}

// Keywords is the market keyword matcher shared by the compressor, the
// hot-words service and the channel-category classifier.
type Keywords struct{}

// NewKeywords returns the shared matcher. It is stateless; the constructor
// exists for symmetry with the other pipeline services.
func NewKeywords() *Keywords { return &Keywords{} }

// Categorize returns the sorted set of market categories whose keyword lists
// match the text, or [general] when none do.
func (k *Keywords) Categorize(text string) []string {
	lower := strings.ToLower(text)
	var cats []string
	for cat, words := range categoryWords {
		for _, w := range words {
			if strings.Contains(lower, w) {
				cats = append(cats, cat)
				break
			}
		}
	}
	if len(cats) == 0 {
		return []string{CatGeneral}
	}
	sort.Strings(cats)
	return cats
}

// IsMarketRelevant reports whether the text matches any closed market domain.
// Equivalent to Categorize(text) != [general].
func (k *Keywords) IsMarketRelevant(text string) bool {
	cats := k.Categorize(text)
	return len(cats) != 1 || cats[0] != CatGeneral
}

// MatchCount returns how many distinct market keywords the text contains,
// across all domains.
func (k *Keywords) MatchCount(text string) int {
	return len(k.Matches(text, 0))
}

// Matches returns the distinct market keywords found in the text, in stable
// category order. limit <= 0 means no cap.
func (k *Keywords) Matches(text string, limit int) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, cat := range []string{CatCrypto, CatAStock, CatUSStock, CatHKStock, CatFutures, CatForex} {
		for _, w := range categoryWords[cat] {
			if strings.Contains(lower, w) {
				out = append(out, w)
				if limit > 0 && len(out) >= limit {
					return out
				}
			}
		}
	}
	return out
}

// FirstCategory returns the first matching market category for a single
// word, or general. Used to tag persisted hot words.
func (k *Keywords) FirstCategory(word string) string {
	lower := strings.ToLower(word)
	// Stable order so the tag is deterministic.
	for _, cat := range []string{CatCrypto, CatAStock, CatUSStock, CatHKStock, CatFutures, CatForex} {
		for _, w := range categoryWords[cat] {
			if strings.Contains(lower, w) || strings.Contains(w, lower) {
				return cat
			}
		}
	}
	return CatGeneral
}

// Sentiment counts bullish vs bearish hits: bullish iff bullish hits exceed
// bearish hits, symmetric for bearish, neutral otherwise.
func (k *Keywords) Sentiment(text string) string {
	lower := strings.ToLower(text)
	bull, bear := 0, 0
	for _, w := range bullishWords {
		bull += strings.Count(lower, w)
	}
	for _, w := range bearishWords {
		bear += strings.Count(lower, w)
	}
	switch {
	case bull > bear:
		return SentimentBullish
	case bear > bull:
		return SentimentBearish
	default:
		return SentimentNeutral
	}
}

var (
	numberWithUnitRe = regexp.MustCompile(`\d+(\.\d+)?%|\d+(\.\d+)?[$¥KMB万亿]`)
	anyDigitRe       = regexp.MustCompile(`\d`)
	urlInTextRe      = regexp.MustCompile(`https?://`)
)

// HasNumericData reports (numbers with a unit, any digit at all).
func HasNumericData(text string) (withUnit bool, anyDigit bool) {
	return numberWithUnitRe.MatchString(text), anyDigitRe.MatchString(text)
}

// HasURL reports whether the text contains an http(s) URL.
func HasURL(text string) bool { return urlInTextRe.MatchString(text) }
