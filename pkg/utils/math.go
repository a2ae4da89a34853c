package utils

import "math"

// math.go - финансовая математика для риск-расчётов
//
// Чистые функции без состояния: используются Risk Assessor'ом
// для портфельных метрик (Sharpe, drawdown, концентрация).

// Годовой коэффициент для Sharpe ratio (торговых дней в году)
const annualizationFactor = 252

// Mean возвращает среднее арифметическое.
// Пустой ряд даёт 0.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev возвращает выборочное стандартное отклонение (n-1).
// Ряд короче двух элементов даёт 0.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	sumSq := 0.0
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}

// SharpeRatio вычисляет аннуализированный Sharpe ratio по ряду
// PNL сделок: mean(pnl) / stdev(pnl) * sqrt(252).
//
// Нулевая волатильность или короткий ряд дают 0.
func SharpeRatio(pnls []float64) float64 {
	sd := StdDev(pnls)
	if sd == 0 {
		return 0
	}
	return Mean(pnls) / sd * math.Sqrt(annualizationFactor)
}

// MaxDrawdown возвращает максимальную просадку в процентах
// по ряду PNL сделок.
//
// Алгоритм: кумулятивная сумма PNL, бегущий пик, максимальное
// процентное падение от пика до впадины. Пики <= 0 пропускаются
// (процент от неположительной базы не определён).
func MaxDrawdown(pnls []float64) float64 {
	if len(pnls) == 0 {
		return 0
	}

	cumulative := 0.0
	peak := 0.0
	maxDD := 0.0

	for _, pnl := range pnls {
		cumulative += pnl
		if cumulative > peak {
			peak = cumulative
		}
		if peak > 0 {
			dd := (peak - cumulative) / peak * 100
			if dd > maxDD {
				maxDD = dd
			}
		}
	}

	return maxDD
}

// HHI возвращает Herfindahl-Hirschman Index по значениям позиций,
// нормированный в 0-100: сумма квадратов долей * 100.
//
// 100 = весь портфель в одной позиции, ->0 = равномерное
// распределение по многим позициям.
func HHI(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	if total <= 0 {
		return 0
	}

	sumSq := 0.0
	for _, v := range values {
		w := v / total
		sumSq += w * w
	}
	return sumSq * 100
}

// CoefficientOfVariation возвращает stdev/mean по значениям.
// Нулевое среднее даёт 0.
func CoefficientOfVariation(values []float64) float64 {
	mean := Mean(values)
	if mean == 0 {
		return 0
	}
	return StdDev(values) / mean
}

// PercentChange возвращает процентное изменение от base к current.
// Нулевая база даёт 0.
func PercentChange(base, current float64) float64 {
	if base == 0 {
		return 0
	}
	return (current - base) / base * 100
}

// Clamp ограничивает значение диапазоном [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Abs возвращает абсолютное значение числа
func Abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// Min возвращает минимум из двух чисел
func Min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Max возвращает максимум из двух чисел
func Max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
