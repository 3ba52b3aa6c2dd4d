package stats

import (
	"gonum.org/v1/gonum/stat/distuv"
)

// Clopper–Pearson exact CI for binomial proportion (k successes out of n)
func proportionCICP(k int64, n int64, confidence float64) (pHat float64, ci CI) {
	if n <= 0 {
		return 0, CI{0, 1}
	}
	alpha := 1 - confidence
	pHat = float64(k) / float64(n)

	// Beta PPF 映射，處理邊界
	if k <= 0 {
		ci.Lo = 0
	} else {
		b := distuv.Beta{Alpha: float64(k), Beta: float64(n - k + 1)}
		ci.Lo = b.Quantile(alpha / 2)
	}
	if k >= n {
		ci.Hi = 1
	} else {
		b := distuv.Beta{Alpha: float64(k + 1), Beta: float64(n - k)}
		ci.Hi = b.Quantile(1 - alpha/2)
	}
	return
}

// normalCI 以常態近似回傳 mean ± z*se（z 取自 distuv.UnitNormal）
func normalCI(mean, se float64) CI {
	z := distuv.UnitNormal.Quantile(1 - (1-confidence)/2)
	return CI{Lo: mean - z*se, Hi: mean + z*se}
}
