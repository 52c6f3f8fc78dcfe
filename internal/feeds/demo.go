package feeds

import (
	"time"

	"github.com/k544228/for-news/internal/models"
)

// DemoItems returns the built-in stories shown when real feeds are unavailable.
// Publication times are anchored to the start of day so repeated fallbacks on the
// same day produce identical items.
func DemoItems(c models.Category, now time.Time) []models.NewsItem {
	day := now.UTC().Truncate(24 * time.Hour)
	at := func(hoursAgo int) time.Time { return day.Add(-time.Duration(hoursAgo) * time.Hour) }

	switch c {
	case models.CategoryWorld:
		return []models.NewsItem{
			{
				ID:          "world-demo-1",
				Title:       "全球氣候變化：各國領袖將召開緊急會議討論應對措施",
				Content:     "聯合國氣候變化框架公約締約方會議即將召開，預計將有超過100個國家參與討論全球暖化問題...",
				Category:    models.CategoryWorld,
				Source:      models.SourceBBC,
				PublishedAt: at(1),
				Analysis: &models.Analysis{
					AffectedGroups:         []string{"全球人類", "島國居民", "農民", "年輕世代"},
					BeforeImpact:           "各國各自為政，缺乏統一的氣候行動計劃",
					AfterImpact:            "可能達成新的全球氣候協議，加速綠色轉型",
					HumorousInterpretation: "地球：「我都快熱死了，你們還在開會討論要不要開空調 🌍🔥」",
				},
			},
			{
				ID:          "world-demo-2",
				Title:       "國際貿易新趨勢：數位貨幣在跨境支付中的應用日益普及",
				Content:     "多個國家開始試行央行數位貨幣(CBDC)，預計將大幅改變國際貿易支付方式...",
				Category:    models.CategoryWorld,
				Source:      models.SourceCNN,
				PublishedAt: at(2),
				Analysis: &models.Analysis{
					AffectedGroups:         []string{"銀行業", "貿易商", "消費者", "政府"},
					BeforeImpact:           "傳統銀行轉帳費時費錢，跨境支付複雜",
					AfterImpact:            "支付更快更便宜，但可能面臨監管挑戰",
					HumorousInterpretation: "錢包：「我從實體變虛擬，從虛擬變更虛擬，我到底是誰？💰🤔」",
				},
			},
		}
	case models.CategoryTech:
		return []models.NewsItem{
			{
				ID:          "tech-demo-1",
				Title:       "AI技術突破：新型機器學習模型能夠預測極端天氣事件",
				Content:     "科學家開發出一種新的人工智慧系統，能夠提前72小時準確預測颱風和暴風雨...",
				Category:    models.CategoryTech,
				Source:      models.SourceBBC,
				PublishedAt: at(3),
				Analysis: &models.Analysis{
					AffectedGroups:         []string{"氣象學家", "災害防救人員", "沿海居民", "AI工程師"},
					BeforeImpact:           "天氣預報準確度有限，災害預警時間不足",
					AfterImpact:            "能更早發出警報，減少生命財產損失",
					HumorousInterpretation: "AI：「我現在連老天爺的心情都能猜到了，下一步是不是要預測樂透號碼？🤖⛈️」",
				},
			},
			{
				ID:          "tech-demo-2",
				Title:       "量子運算重大進展：新型量子晶片運算能力大幅提升",
				Content:     "研究團隊宣布最新的量子運算晶片取得重大突破，能夠處理更複雜的運算問題...",
				Category:    models.CategoryTech,
				Source:      models.SourceAP,
				PublishedAt: at(4),
				Analysis: &models.Analysis{
					AffectedGroups:         []string{"科技公司", "研究機構", "密碼學專家", "投資者"},
					BeforeImpact:           "傳統電腦在某些問題上運算能力有限",
					AfterImpact:            "可能革命性改變密碼學、藥物研發等領域",
					HumorousInterpretation: "傳統電腦：「我算個數學題要幾小時，你們幾秒就搞定，這還讓不讓人活了？💻😤」",
				},
			},
		}
	case models.CategoryEnvironment:
		return []models.NewsItem{
			{
				ID:          "environment-demo-1",
				Title:       "海洋清潔新技術：大型設備成功清除太平洋垃圾帶塑膠廢料",
				Content:     "海洋清潔組織的大型設備成功從太平洋垃圾帶清除了數噸塑膠廢料...",
				Category:    models.CategoryEnvironment,
				Source:      models.SourceBBC,
				PublishedAt: at(5),
				Analysis: &models.Analysis{
					AffectedGroups:         []string{"海洋生物", "環保組織", "漁民", "沿海社區"},
					BeforeImpact:           "海洋塑膠污染嚴重威脅生態系統",
					AfterImpact:            "海洋環境逐步改善，海洋生物棲息地恢復",
					HumorousInterpretation: "海龜：「終於不用再把塑膠袋當水母吃了！🐢🗑️」",
				},
			},
			{
				ID:          "environment-demo-2",
				Title:       "再生能源里程碑：全球太陽能發電量首次超越煤炭發電",
				Content:     "國際能源署報告顯示，全球太陽能發電量歷史性地超越了煤炭發電量...",
				Category:    models.CategoryEnvironment,
				Source:      models.SourceAlJazeera,
				PublishedAt: at(6),
				Analysis: &models.Analysis{
					AffectedGroups:         []string{"能源公司", "環保人士", "煤炭工人", "全球民眾"},
					BeforeImpact:           "煤炭是主要能源來源，造成大量碳排放",
					AfterImpact:            "清潔能源成為主流，減少溫室氣體排放",
					HumorousInterpretation: "太陽：「我免費發光發熱這麼多年，終於有人認真對待我的能力了！☀️⚡」",
				},
			},
		}
	default:
		return nil
	}
}

// DemoSnapshot builds a full snapshot out of demo items.
func DemoSnapshot(now time.Time) models.Snapshot {
	var snap models.Snapshot
	for _, c := range models.Categories {
		snap.SetItems(c, DemoItems(c, now))
	}
	snap.LastUpdated = now
	return snap
}
