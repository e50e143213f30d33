package config

// Config is the run configuration assembled from command-line flags.
type Config struct {
	InputPath       string
	KeyframeSpec    string
	WeightSpec      string
	SourceSpec      string
	Interval        int
	MaxFramesPerBin int
	HighDetail      bool
	SettingsPath    string
	PlanOutput      string
	PreviewOutput   string
	Width           int
	Height          int
	FPS             int
	Workers         int
	DPI             int
	Seed            int64
	Debug           bool
	ShowStats       bool
	VideoEncoder    string
	Quality         int
	BuildVersion    string
}

const (
	DefaultKeyframes       = "0,16,32,48"
	DefaultWeights         = "1.0,1.0,1.0,1.0"
	DefaultMaxFramesPerBin = 32
	DefaultFPS             = 16
	DefaultWidth           = 512
	DefaultHeight          = 512
	DefaultDPI             = 150
)
