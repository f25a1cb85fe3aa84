package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"
)

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"
)

type ImageFormat string

type Config struct {
	DBPath     string
	MissionID  int64
	OutputFile string
	Format     ImageFormat
	Phase      string
	Width      int
	Height     int
	TimeZone   *time.Location
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format:   ImagePNG,
		Width:    1200,
		Height:   600,
		TimeZone: time.Local,
	}
}

// NewConfigFromCLI parses command line arguments, without the program name
func NewConfigFromCLI(args []string) (*Config, error) {
	c := NewConfig()

	fs := flag.NewFlagSet("flightplot", flag.ContinueOnError)

	var imageFormat, timeZone string
	fs.StringVar(&c.DBPath, "db", "", "Path to the flight log database file")
	fs.Int64Var(&c.MissionID, "m", 0, "Mission ID")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	fs.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	fs.StringVar(&c.Phase, "phase", "", "Plot a single control phase only. [takeoff, hold]")
	fs.IntVar(&c.Width, "width", c.Width, "Plot area width in pixels")
	fs.IntVar(&c.Height, "height", c.Height, "Plot area height in pixels")
	fs.StringVar(&timeZone, "tz", "", "Time zone for labels, e.g. Australia/Sydney. Local time by default")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	imageFormat = strings.ToLower(imageFormat)
	if imageFormat == "jpg" {
		imageFormat = string(ImageJPEG)
	}

	var err error
	switch {
	case c.DBPath == "":
		err = errors.New("db path is required")
	case c.MissionID <= 0:
		err = errors.New("mission id is required")
	case c.OutputFile == "":
		err = errors.New("output file is required")
	case c.Width < 200 || c.Height < 100:
		err = fmt.Errorf("plot area too small: %dx%d", c.Width, c.Height)
	case c.Phase != "" && c.Phase != "takeoff" && c.Phase != "hold":
		err = fmt.Errorf("invalid phase: %s", c.Phase)
	}
	if _, ok := validImageFormats[ImageFormat(imageFormat)]; err == nil && !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	}
	if err == nil && timeZone != "" {
		if c.TimeZone, err = time.LoadLocation(timeZone); err != nil {
			err = fmt.Errorf("invalid time zone: %w", err)
		}
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
