package nodeconfig

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ScaleMode 音阶量化模式，数值与节点固件中的 DEFAULT_SCALE 保持一致
type ScaleMode int

const (
	ScaleChromatic ScaleMode = iota
	ScaleMinor
	ScaleMajor
	ScalePentatonic
	ScaleIndian
)

var scaleNames = [...]string{
	ScaleChromatic:  "Chromatic",
	ScaleMinor:      "Minor",
	ScaleMajor:      "Major",
	ScalePentatonic: "Pentatonic",
	ScaleIndian:     "Indian",
}

// 固件注释里使用的西语名称
var scaleAliases = map[string]ScaleMode{
	"cromatica":   ScaleChromatic,
	"cromática":   ScaleChromatic,
	"menor":       ScaleMinor,
	"mayor":       ScaleMajor,
	"pentatonica": ScalePentatonic,
	"pentatónica": ScalePentatonic,
	"india":       ScaleIndian,
}

// Valid 是否为已知音阶
func (s ScaleMode) Valid() bool {
	return s >= ScaleChromatic && s <= ScaleIndian
}

func (s ScaleMode) String() string {
	if !s.Valid() {
		return fmt.Sprintf("ScaleMode(%d)", int(s))
	}
	return scaleNames[s]
}

// ParseScaleMode 解析音阶，接受英文名、西语名（不区分大小写）或 0-4 的数字
func ParseScaleMode(text string) (ScaleMode, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, fmt.Errorf("empty scale mode")
	}

	if n, err := strconv.Atoi(trimmed); err == nil {
		mode := ScaleMode(n)
		if !mode.Valid() {
			return 0, fmt.Errorf("scale mode %d out of range 0-%d", n, int(ScaleIndian))
		}
		return mode, nil
	}

	lower := strings.ToLower(trimmed)
	for i, name := range scaleNames {
		if strings.ToLower(name) == lower {
			return ScaleMode(i), nil
		}
	}
	if mode, ok := scaleAliases[lower]; ok {
		return mode, nil
	}
	return 0, fmt.Errorf("unknown scale mode %q", text)
}

// MarshalYAML 以名称写出
func (s ScaleMode) MarshalYAML() (interface{}, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid scale mode %d", int(s))
	}
	return s.String(), nil
}

// UnmarshalYAML 同时接受名称和数字
func (s *ScaleMode) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: DEFAULT_SCALE must be a scalar", node.Line)
	}
	mode, err := ParseScaleMode(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*s = mode
	return nil
}

func (s ScaleMode) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid scale mode %d", int(s))
	}
	return json.Marshal(s.String())
}

func (s *ScaleMode) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		var n int
		if numErr := json.Unmarshal(data, &n); numErr != nil {
			return fmt.Errorf("scale mode must be a name or number: %w", err)
		}
		text = strconv.Itoa(n)
	}
	mode, err := ParseScaleMode(text)
	if err != nil {
		return err
	}
	*s = mode
	return nil
}
