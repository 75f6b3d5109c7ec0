package mapping

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewAssociationID 生成 assoc_<unix毫秒>_<8位十六进制>
func NewAssociationID(now time.Time) string {
	// 随机 UUID 的前 4 字节不含版本位
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("assoc_%d_%s", now.UnixMilli(), suffix)
}
