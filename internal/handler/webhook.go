package handler

import (
	"net/http"

	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/conversation"
)

// Webhook 接收聊天平台推送的一条消息，返回机器人要回复的内容
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var event conversation.Event

	if err := h.readJSON(r, &event); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(event); err != nil {
		h.badRequest(w, r, err)
		return
	}

	reply, err := h.machine.Handle(r.Context(), event)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "已处理消息", reply)
}
