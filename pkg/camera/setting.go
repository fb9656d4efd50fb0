package camera

import (
	"fmt"

	"github.com/vladimirvivien/go4vl/v4l2"
	"go.uber.org/zap"

	"picam-motion/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

// V4L2 control ids used by the bcm2835 camera driver.
const (
	ctrlBrightness   v4l2.CtrlID = 0x00980900
	ctrlContrast     v4l2.CtrlID = 0x00980901
	ctrlSaturation   v4l2.CtrlID = 0x00980902
	ctrlHFlip        v4l2.CtrlID = 0x00980914
	ctrlVFlip        v4l2.CtrlID = 0x00980915
	ctrlSharpness    v4l2.CtrlID = 0x0098091b
	ctrlColorFX      v4l2.CtrlID = 0x0098091f
	ctrlRotate       v4l2.CtrlID = 0x00980922
	ctrlExposureAuto v4l2.CtrlID = 0x009a0901
	ctrlExposureAbs  v4l2.CtrlID = 0x009a0902
	ctrlExposureBias v4l2.CtrlID = 0x009a0913
	ctrlWhiteBalance v4l2.CtrlID = 0x009a0914
	ctrlStabilize    v4l2.CtrlID = 0x009a0916
	ctrlISO          v4l2.CtrlID = 0x009a0917
	ctrlISOAuto      v4l2.CtrlID = 0x009a0918
	ctrlMetering     v4l2.CtrlID = 0x009a0919
	ctrlSceneMode    v4l2.CtrlID = 0x009a091a
	ctrlJPEGQuality  v4l2.CtrlID = 0x009d0903
)

const (
	exposureAuto   = 0
	exposureManual = 1
)

var (
	sceneModes = map[string]v4l2.CtrlValue{
		"auto":      0,
		"off":       0,
		"backlight": 1,
		"beach":     2,
		"snow":      2,
		"fireworks": 6,
		"night":     8,
		"sports":    11,
	}
	awbModes = map[string]v4l2.CtrlValue{
		"off":          0,
		"auto":         1,
		"incandescent": 2,
		"tungsten":     2,
		"fluorescent":  3,
		"horizon":      5,
		"sunlight":     6,
		"flash":        7,
		"cloudy":       8,
		"shade":        9,
	}
	meteringModes = map[string]v4l2.CtrlValue{
		"average": 0,
		"backlit": 1,
		"spot":    2,
		"matrix":  3,
	}
	imageEffects = map[string]v4l2.CtrlValue{
		"none":     0,
		"negative": 3,
		"emboss":   4,
		"sketch":   5,
		"solarize": 13,
	}
	// menu index of the driver's ISO int-menu
	isoSteps = []int{0, 100, 200, 400, 800}
)

// Settings are the user facing camera parameters. Zero values other than
// Brightness mean "driver default".
type Settings struct {
	Exposure             string `json:"exposure" yaml:"exposure"`
	MeterMode            string `json:"meterMode" yaml:"meter_mode"`
	ImageFX              string `json:"imageFX" yaml:"image_fx"`
	AWBMode              string `json:"awbMode" yaml:"awb_mode"`
	ISO                  int    `json:"iso" yaml:"iso"`
	Sharpness            int    `json:"sharpness" yaml:"sharpness"`   // -100 to 100
	Contrast             int    `json:"contrast" yaml:"contrast"`     // -100 to 100
	Brightness           int    `json:"brightness" yaml:"brightness"` // 0 to 100
	Saturation           int    `json:"saturation" yaml:"saturation"` // -100 to 100
	VideoStabilisation   bool   `json:"videoStabilisation" yaml:"video_stabilisation"`
	ExposureCompensation int    `json:"exposureCompensation" yaml:"exposure_compensation"` // -10 to 10
	Rotation             int    `json:"rotation" yaml:"rotation"`                          // 0, 90, 180, 270
	HFlip                bool   `json:"hflip" yaml:"hflip"`
	VFlip                bool   `json:"vflip" yaml:"vflip"`
	// 0 = auto, otherwise the shutter speed in ms
	ShutterSpeed int `json:"shutterSpeed" yaml:"shutter_speed"`
}

func DefaultSettings() Settings {
	return Settings{
		Exposure:   "auto",
		MeterMode:  "average",
		ImageFX:    "none",
		AWBMode:    "auto",
		Brightness: 50,
	}
}

func (s Settings) Validate() error {
	if _, ok := sceneModes[s.Exposure]; !ok {
		return fmt.Errorf("unknown exposure mode %q", s.Exposure)
	}
	if _, ok := meteringModes[s.MeterMode]; !ok {
		return fmt.Errorf("unknown meter mode %q", s.MeterMode)
	}
	if _, ok := awbModes[s.AWBMode]; !ok {
		return fmt.Errorf("unknown awb mode %q", s.AWBMode)
	}
	if _, ok := imageEffects[s.ImageFX]; !ok {
		return fmt.Errorf("unknown image effect %q", s.ImageFX)
	}
	if isoIndex(s.ISO) < 0 {
		return fmt.Errorf("unsupported iso %d, want one of %v", s.ISO, isoSteps)
	}
	checks := []struct {
		name     string
		v        int
		min, max int
	}{
		{"brightness", s.Brightness, 0, 100},
		{"contrast", s.Contrast, -100, 100},
		{"saturation", s.Saturation, -100, 100},
		{"sharpness", s.Sharpness, -100, 100},
		{"exposureCompensation", s.ExposureCompensation, -10, 10},
		{"rotation", s.Rotation, 0, 359},
		{"shutterSpeed", s.ShutterSpeed, 0, 10000},
	}
	for _, c := range checks {
		if c.v < c.min || c.v > c.max {
			return fmt.Errorf("%s %d out of range [%d,%d]", c.name, c.v, c.min, c.max)
		}
	}

	return nil
}

// Controls translates the settings into V4L2 control values. Unknown mode
// names fall back to the driver default.
func (s Settings) Controls() map[v4l2.CtrlID]v4l2.CtrlValue {
	res := map[v4l2.CtrlID]v4l2.CtrlValue{
		ctrlBrightness:   v4l2.CtrlValue(s.Brightness),
		ctrlContrast:     v4l2.CtrlValue(s.Contrast),
		ctrlSaturation:   v4l2.CtrlValue(s.Saturation),
		ctrlSharpness:    v4l2.CtrlValue(s.Sharpness),
		ctrlHFlip:        boolValue(s.HFlip),
		ctrlVFlip:        boolValue(s.VFlip),
		ctrlRotate:       v4l2.CtrlValue((s.Rotation / 90) * 90),
		ctrlStabilize:    boolValue(s.VideoStabilisation),
		ctrlExposureBias: v4l2.CtrlValue(s.ExposureCompensation),
		ctrlColorFX:      imageEffects[s.ImageFX],
		ctrlWhiteBalance: valueOr(awbModes, s.AWBMode, 1),
		ctrlMetering:     meteringModes[s.MeterMode],
		ctrlSceneMode:    sceneModes[s.Exposure],
	}

	if s.ShutterSpeed > 0 || s.Exposure == "off" {
		res[ctrlExposureAuto] = exposureManual
		if s.ShutterSpeed > 0 {
			// driver unit is 100us
			res[ctrlExposureAbs] = v4l2.CtrlValue(s.ShutterSpeed * 10)
		}
	} else {
		res[ctrlExposureAuto] = exposureAuto
	}

	if s.ISO == 0 {
		res[ctrlISOAuto] = 1
	} else {
		res[ctrlISOAuto] = 0
		res[ctrlISO] = v4l2.CtrlValue(isoIndex(s.ISO))
	}

	return res
}

func isoIndex(iso int) int {
	for i, v := range isoSteps {
		if v == iso {
			return i
		}
	}
	return -1
}

func boolValue(b bool) v4l2.CtrlValue {
	if b {
		return 1
	}
	return 0
}

func valueOr(m map[string]v4l2.CtrlValue, key string, def v4l2.CtrlValue) v4l2.CtrlValue {
	if v, ok := m[key]; ok {
		return v
	}
	return def
}
