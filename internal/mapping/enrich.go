package mapping

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gonglijing/biodataBridge/internal/models"
)

// UnknownPlant 无活动关联时的 plant_name 标签
const UnknownPlant = "unknown"

// ValidDeviceID 非空且是单个主题层级（不含 / + #）
func ValidDeviceID(id string) bool {
	return id != "" && !strings.ContainsAny(id, "/+#")
}

// ExtractDeviceID 依次取：显式 device_id、payload 的 sensor_id 或 sid、主题倒数第二级、主题最后一级。
// 选中的值不是单个主题层级时返回空串。
func ExtractDeviceID(msg *models.SensorMessage) string {
	if msg == nil {
		return ""
	}
	if id := strings.TrimSpace(msg.DeviceID); id != "" {
		return topicLevel(id)
	}
	for _, key := range []string{"sensor_id", "sid"} {
		if id := payloadString(msg.Payload, key); id != "" {
			return topicLevel(id)
		}
	}

	if msg.Topic == "" {
		return ""
	}
	parts := strings.Split(msg.Topic, "/")
	if len(parts) >= 2 {
		if id := parts[len(parts)-2]; id != "" {
			return topicLevel(id)
		}
	}
	return topicLevel(parts[len(parts)-1])
}

func topicLevel(id string) string {
	if !ValidDeviceID(id) {
		return ""
	}
	return id
}

func payloadString(payload map[string]interface{}, key string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == 0 {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// EnrichTags 按关联添加植物标签；tags 为 nil 时新建。assoc 为 nil 时只设置 plant_name=unknown
func EnrichTags(tags map[string]string, assoc *models.Association) map[string]string {
	if tags == nil {
		tags = make(map[string]string)
	}
	if assoc == nil {
		tags["plant_name"] = UnknownPlant
		return tags
	}

	tags["plant_name"] = assoc.PlantName
	if assoc.PlantSpecies != nil && *assoc.PlantSpecies != "" {
		tags["plant_species"] = *assoc.PlantSpecies
	}
	if assoc.GPSLatitude != nil {
		tags["gps_lat"] = strconv.FormatFloat(*assoc.GPSLatitude, 'f', -1, 64)
	}
	if assoc.GPSLongitude != nil {
		tags["gps_lon"] = strconv.FormatFloat(*assoc.GPSLongitude, 'f', -1, 64)
	}
	if assoc.ID != "" {
		tags["association_id"] = assoc.ID
	}
	return tags
}
