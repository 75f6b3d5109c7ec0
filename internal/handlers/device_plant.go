package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	apperrors "github.com/gonglijing/biodataBridge/internal/errors"
	"github.com/gonglijing/biodataBridge/internal/models"
)

// CreateAssociationResponse POST /device-plant/associate 响应
type CreateAssociationResponse struct {
	Success       bool                `json:"success"`
	AssociationID string              `json:"association_id"`
	Message       string              `json:"message"`
	Association   *models.Association `json:"association"`
}

// CloseAssociationResponse POST /device-plant/close/{device_id} 响应
type CloseAssociationResponse struct {
	Success     bool                `json:"success"`
	Message     string              `json:"message"`
	Association *models.Association `json:"association"`
}

// AssociationListResponse GET /device-plant/associations/{device_id} 响应
type AssociationListResponse struct {
	DeviceID     string                `json:"device_id"`
	Count        int                   `json:"count"`
	Associations []*models.Association `json:"associations"`
	*PageInfo
}

// PlantsMapResponse GET /api/plants/map 响应
type PlantsMapResponse struct {
	Plants []models.PlantMapEntry `json:"plants"`
	Count  int                    `json:"count"`
}

type closeRequest struct {
	EndTime *time.Time `json:"end_time"`
}

// CreateAssociation 创建设备-植物关联
func (h *Handler) CreateAssociation(w http.ResponseWriter, r *http.Request) {
	body, err := decodeJSONBody(w, r)
	if err != nil {
		writePlainError(w, err)
		return
	}
	if body == nil {
		writePlainError(w, apperrors.NewError(apperrors.ErrCodeBadRequest, "device_id and plant_name are required"))
		return
	}
	if err := h.associationBody.Validate(body); err != nil {
		writePlainError(w, err)
		return
	}

	var in models.AssociationInput
	if err := json.Unmarshal(body, &in); err != nil {
		writePlainError(w, apperrors.NewErrorWithErr(apperrors.ErrCodeBadRequest, errInvalidRequestBodyPrefix+err.Error(), err))
		return
	}

	assoc, err := h.mapping.Create(r.Context(), in)
	if err != nil {
		h.logFailure("Create association failed", err, "device_id", in.DeviceID)
		writePlainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, CreateAssociationResponse{
		Success:       true,
		AssociationID: assoc.ID,
		Message:       msgAssociationCreated,
		Association:   assoc,
	})
}

// GetActiveAssociation 设备当前的活动关联；?at=RFC3339 查询指定时刻
func (h *Handler) GetActiveAssociation(w http.ResponseWriter, r *http.Request) {
	deviceID := pathVar(r, "device_id")
	if deviceID == "" {
		writePlainError(w, apperrors.NewFieldError(apperrors.ErrCodeBadRequest, "device_id", errDeviceIDRequiredMessage))
		return
	}

	at := h.now()
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writePlainError(w, apperrors.NewFieldError(apperrors.ErrCodeBadRequest, "at", errInvalidAtMessage))
			return
		}
		at = parsed
	}

	assoc, err := h.mapping.ActiveFor(r.Context(), deviceID, at)
	if err != nil {
		h.logFailure("Get active association failed", err, "device_id", deviceID)
		writePlainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, assoc)
}

// ListAssociations 设备的全部关联（含历史）；带 page/page_size 时分页，count 仍为总数
func (h *Handler) ListAssociations(w http.ResponseWriter, r *http.Request) {
	deviceID := pathVar(r, "device_id")
	list, err := h.mapping.ListFor(r.Context(), deviceID)
	if err != nil {
		h.logFailure("List associations failed", err, "device_id", deviceID)
		writePlainError(w, err)
		return
	}
	resp := AssociationListResponse{
		DeviceID:     deviceID,
		Count:        len(list),
		Associations: list,
	}
	if params, ok := GetPagination(r, 20); ok {
		start, end, info := paginate(len(list), params)
		resp.Associations = list[start:end]
		resp.PageInfo = &info
	}
	WriteJSON(w, http.StatusOK, resp)
}

// CloseAssociation 关闭设备的活动关联，请求体可选 {"end_time": "..."}
func (h *Handler) CloseAssociation(w http.ResponseWriter, r *http.Request) {
	deviceID := pathVar(r, "device_id")
	if deviceID == "" {
		writePlainError(w, apperrors.NewFieldError(apperrors.ErrCodeBadRequest, "device_id", errDeviceIDRequiredMessage))
		return
	}

	body, err := decodeJSONBody(w, r)
	if err != nil {
		writePlainError(w, err)
		return
	}
	var req closeRequest
	if body != nil {
		if err := h.closeBody.Validate(body); err != nil {
			writePlainError(w, err)
			return
		}
		if err := json.Unmarshal(body, &req); err != nil {
			writePlainError(w, apperrors.NewFieldError(apperrors.ErrCodeBadRequest, "end_time", errInvalidEndTimeMessage))
			return
		}
	}

	assoc, err := h.mapping.Close(r.Context(), deviceID, req.EndTime)
	if err != nil {
		h.logFailure("Close association failed", err, "device_id", deviceID)
		writePlainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, CloseAssociationResponse{
		Success:     true,
		Message:     msgAssociationClosed,
		Association: assoc,
	})
}

// GetPlantsMap 地图展示用的植物位置
func (h *Handler) GetPlantsMap(w http.ResponseWriter, r *http.Request) {
	plants, err := h.mapping.PlantsMap(r.Context())
	if err != nil {
		h.logFailure("Get plants map failed", err)
		writePlainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, PlantsMapResponse{Plants: plants, Count: len(plants)})
}

// logFailure 只记录 5xx，客户端错误不写日志
func (h *Handler) logFailure(msg string, err error, keysAndValues ...interface{}) {
	if apperrors.StatusOf(err) >= http.StatusInternalServerError {
		h.log.Error(msg, err, keysAndValues...)
	}
}
