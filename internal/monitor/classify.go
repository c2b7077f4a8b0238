package monitor

import (
	"sort"
	"strings"

	"github.com/quantops/qubot/internal/store"
)

// classifySampleCap bounds how many cached rows the classifier reads.
const classifySampleCap = 50

// dominanceRatio is how much the top category must outscore the runner-up
// before a verdict is issued. The top score must be strictly above this
// multiple; exactly 1.5x stays "market".
const dominanceRatio = 1.5

// Channel categories beyond the default "market".
const (
	CategoryMarket   = "market"
	CategoryNews     = "news"
	CategoryTech     = "tech"
	CategoryResource = "resource"
	CategorySkip     = "skip"
)

var classifierWords = map[string][]string{
	CategoryNews: {
		"新闻", "快讯", "报道", "消息面", "要闻", "时政", "国际", "突发",
		"breaking", "news", "headline", "report", "reuters", "bloomberg",
	},
	CategoryTech: {
		"开源", "代码", "框架", "编程", "部署", "算法", "模型训练", "前端", "后端",
		"github", "python", "golang", "docker", "kubernetes", "api", "sdk", "release notes",
	},
	CategoryResource: {
		"资源分享", "网盘", "下载链接", "电子书", "课程", "合集", "资料包", "破解",
		"magnet", "torrent", "ebook", "course bundle", "free download",
	},
	CategorySkip: {
		"闲聊", "灌水", "表情包", "水群", "签到", "晚安", "早安",
		"meme", "off topic", "chitchat", "good morning", "gm gm",
	},
}

// ClassifyChannel scores up to 50 sampled messages against the category
// word sets and returns a non-market verdict only when the top category
// outscores the runner-up by the dominance ratio.
func ClassifyChannel(msgs []store.CachedMessage) string {
	if len(msgs) > classifySampleCap {
		msgs = msgs[:classifySampleCap]
	}

	scores := map[string]int{}
	for _, m := range msgs {
		lower := strings.ToLower(m.Text)
		for cat, words := range classifierWords {
			for _, w := range words {
				scores[cat] += strings.Count(lower, w)
			}
		}
	}

	type cs struct {
		cat   string
		score int
	}
	ranked := make([]cs, 0, len(scores))
	for cat, sc := range scores {
		if sc > 0 {
			ranked = append(ranked, cs{cat, sc})
		}
	}
	if len(ranked) == 0 {
		return CategoryMarket
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].cat < ranked[j].cat
	})

	if len(ranked) > 1 && float64(ranked[0].score) <= dominanceRatio*float64(ranked[1].score) {
		return CategoryMarket
	}
	return ranked[0].cat
}
