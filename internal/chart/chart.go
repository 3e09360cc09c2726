package chart

// Kind names the chart variant.
type Kind string

const (
	KindBar          Kind = "bar"
	KindScatter      Kind = "scatter"
	KindHistogram    Kind = "histogram"
	KindFrequencyBar Kind = "frequency_bar"
)

const (
	// Height is the fixed chart height in pixels.
	Height = 400
	// RotateAbove is the category count above which tick labels are rotated.
	RotateAbove = 5
	// TickAngle is the rotation applied to crowded category axes.
	TickAngle = 45
)

// Layout is the presentation contract shared by every chart kind.
type Layout struct {
	Height    int `json:"height"`
	TickAngle int `json:"tick_angle"`
}

// Chart is a closed variant: Kind selects which one of the payload fields is
// set. A nil *Chart means no chart.
type Chart struct {
	Kind   Kind   `json:"kind"`
	Title  string `json:"title"`
	XAxis  string `json:"x_axis"`
	YAxis  string `json:"y_axis"`
	Layout Layout `json:"layout"`

	Bar          *Bar          `json:"bar,omitempty"`
	Scatter      *Scatter      `json:"scatter,omitempty"`
	Histogram    *Histogram    `json:"histogram,omitempty"`
	FrequencyBar *FrequencyBar `json:"frequency_bar,omitempty"`
}

// Bar plots one numeric value per category row.
type Bar struct {
	CategoryAxis string    `json:"category_axis"`
	ValueAxis    string    `json:"value_axis"`
	Categories   []string  `json:"categories"`
	Values       []float64 `json:"values"`
}

// Scatter plots pairs of numeric columns.
type Scatter struct {
	XAxis string    `json:"x_axis"`
	YAxis string    `json:"y_axis"`
	X     []float64 `json:"x"`
	Y     []float64 `json:"y"`
}

// Histogram carries the raw samples of a single numeric column.
type Histogram struct {
	Axis    string    `json:"axis"`
	Samples []float64 `json:"samples"`
}

// CategoryCount is one bar of a frequency chart.
type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// FrequencyBar counts identical values of a categorical column.
type FrequencyBar struct {
	CategoryAxis string          `json:"category_axis"`
	Counts       []CategoryCount `json:"counts"`
}
