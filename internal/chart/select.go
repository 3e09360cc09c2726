package chart

import (
	"math"
	"sort"

	"dbchat-backend/internal/resultset"
)

// Select picks a chart for the inferred columns. The first matching rule wins
// and ties go to the earliest column:
//
//	categorical + numeric -> Bar
//	two or more numeric   -> Scatter
//	one numeric           -> Histogram
//	only categorical      -> FrequencyBar
//
// Select returns nil when there are no columns.
func Select(cols []resultset.TypedColumn) *Chart {
	categorical, numeric := resultset.Split(cols)

	switch {
	case len(categorical) > 0 && len(numeric) > 0:
		return bar(categorical[0], numeric[0])
	case len(numeric) >= 2:
		return scatter(numeric[0], numeric[1])
	case len(numeric) == 1:
		return histogram(numeric[0])
	case len(categorical) > 0:
		return frequency(categorical[0])
	}
	return nil
}

func bar(cat, num resultset.TypedColumn) *Chart {
	b := &Bar{CategoryAxis: cat.Name, ValueAxis: num.Name}
	for i, v := range num.Numbers {
		if math.IsNaN(v) {
			continue
		}
		b.Categories = append(b.Categories, cat.Values[i])
		b.Values = append(b.Values, v)
	}
	return &Chart{
		Kind:   KindBar,
		Title:  num.Name + " by " + cat.Name,
		XAxis:  cat.Name,
		YAxis:  num.Name,
		Layout: categoryLayout(distinct(b.Categories)),
		Bar:    b,
	}
}

func scatter(x, y resultset.TypedColumn) *Chart {
	s := &Scatter{XAxis: x.Name, YAxis: y.Name}
	for i := range x.Numbers {
		if math.IsNaN(x.Numbers[i]) || math.IsNaN(y.Numbers[i]) {
			continue
		}
		s.X = append(s.X, x.Numbers[i])
		s.Y = append(s.Y, y.Numbers[i])
	}
	return &Chart{
		Kind:    KindScatter,
		Title:   y.Name + " vs " + x.Name,
		XAxis:   x.Name,
		YAxis:   y.Name,
		Layout:  Layout{Height: Height},
		Scatter: s,
	}
}

func histogram(col resultset.TypedColumn) *Chart {
	h := &Histogram{Axis: col.Name}
	for _, v := range col.Numbers {
		if !math.IsNaN(v) {
			h.Samples = append(h.Samples, v)
		}
	}
	return &Chart{
		Kind:      KindHistogram,
		Title:     "Distribution of " + col.Name,
		XAxis:     col.Name,
		YAxis:     "Count",
		Layout:    Layout{Height: Height},
		Histogram: h,
	}
}

func frequency(col resultset.TypedColumn) *Chart {
	counts := Frequencies(col.Values)
	return &Chart{
		Kind:         KindFrequencyBar,
		Title:        "Count of " + col.Name,
		XAxis:        col.Name,
		YAxis:        "Count",
		Layout:       categoryLayout(len(counts)),
		FrequencyBar: &FrequencyBar{CategoryAxis: col.Name, Counts: counts},
	}
}

// Frequencies counts identical non-empty values, ordered by descending count
// with ties in first-seen order.
func Frequencies(values []string) []CategoryCount {
	index := make(map[string]int)
	var counts []CategoryCount
	for _, v := range values {
		if v == "" {
			continue
		}
		if i, ok := index[v]; ok {
			counts[i].Count++
			continue
		}
		index[v] = len(counts)
		counts = append(counts, CategoryCount{Value: v, Count: 1})
	}
	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})
	return counts
}

func categoryLayout(categories int) Layout {
	l := Layout{Height: Height}
	if categories > RotateAbove {
		l.TickAngle = TickAngle
	}
	return l
}

func distinct(values []string) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}
