package handlers

import (
	"net/http"

	"github.com/gonglijing/biodataBridge/internal/nodeconfig"
)

// NodeInfo GET /api/node 响应数据
type NodeInfo struct {
	Path            string             `json:"path"`
	Record          nodeconfig.Record  `json:"record"`
	Tuning          nodeconfig.Tuning  `json:"tuning"`
	Topics          NodeTopics         `json:"topics"`
	Warnings        []string           `json:"warnings"`
	RestartRequired bool               `json:"restart_required"`
	Pending         *nodeconfig.Record `json:"pending,omitempty"`
	ReloadError     string             `json:"reload_error,omitempty"`
}

// NodeTopics 节点相关主题
type NodeTopics struct {
	Broker    string `json:"broker"`
	Subscribe string `json:"subscribe"`
	Status    string `json:"status"`
	Config    string `json:"config"`
}

// GetNode 运行中的节点配置记录，密码已隐藏
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	if h.node == nil || h.node.Running() == nil {
		WriteNotFound(w, errNodeRecordMissingMessage)
		return
	}
	rec := h.node.Running()
	warnings := rec.Warnings()
	if warnings == nil {
		warnings = []string{}
	}
	info := NodeInfo{
		Path:     h.node.Path(),
		Record:   rec.Redacted(),
		Tuning:   rec.Tuning(),
		Warnings: warnings,
		Topics: NodeTopics{
			Broker:    rec.BrokerURL(),
			Subscribe: rec.Topic("#"),
			Status:    rec.NodeTopic("status"),
			Config:    rec.NodeTopic("config"),
		},
	}
	if pending := h.node.Pending(); pending != nil {
		redacted := pending.Redacted()
		info.RestartRequired = true
		info.Pending = &redacted
	}
	if err := h.node.LastError(); err != nil {
		info.ReloadError = err.Error()
	}
	WriteSuccess(w, info)
}

// GetBridgeStats 桥接运行统计
func (h *Handler) GetBridgeStats(w http.ResponseWriter, r *http.Request) {
	if h.bridge == nil {
		WriteError(w, http.StatusServiceUnavailable, errBridgeDisabledMessage)
		return
	}
	WriteSuccess(w, h.bridge.Stats())
}
