package handler

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/config"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/conversation"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/domain"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/notifier"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/repository"
	"github.com/sysu-ecnc-dev/shift-exchange/backend/internal/workflow"
)

type Handler struct {
	validate   *validator.Validate
	config     *config.Config
	repository *repository.Repository
	translator ut.Translator
	publisher  *notifier.Publisher
	manager    *workflow.Manager
	machine    *conversation.Machine

	Mux *chi.Mux
}

func NewHandler(cfg *config.Config, repo *repository.Repository, publisher *notifier.Publisher, manager *workflow.Manager, machine *conversation.Machine) (*Handler, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	zh := zh.New()
	uni := ut.New(zh, zh)
	trans, _ := uni.GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}

	return &Handler{
		validate:   validate,
		config:     cfg,
		repository: repo,
		translator: trans,
		publisher:  publisher,
		manager:    manager,
		machine:    machine,

		Mux: chi.NewRouter(),
	}, nil
}

func (h *Handler) RegisterRoutes() {
	h.Mux.Use(h.logger)
	h.Mux.Use(h.recoverer)

	h.Mux.Handle("/metrics", promhttp.Handler())

	// 聊天平台的回调，通过共享密钥而不是 JWT 认证
	h.Mux.With(h.webhookToken).Post("/webhook", h.Webhook)

	// 认证相关
	h.Mux.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
	})

	// 以下 API 必须要在登录后才允许调用
	h.Mux.Group(func(r chi.Router) {
		r.Use(h.auth)
		r.Use(h.myInfo)

		r.Route("/my-info", func(r chi.Router) {
			r.Get("/", h.GetMyInfo)
			r.Patch("/password", h.UpdateMyPassword)
			r.Get("/shifts", h.GetMyShifts)
		})

		r.Route("/employees", func(r chi.Router) {
			r.With(h.RequiredRole([]domain.Role{domain.RoleManager})).Post("/", h.CreateEmployee)
			r.Get("/", h.GetAllEmployees)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(h.employeeInfo)
				r.Get("/", h.GetEmployee)
				r.With(h.preventOperateInitialAdmin).With(h.RequiredRole([]domain.Role{domain.RoleManager})).Patch("/", h.UpdateEmployee)
				r.With(h.preventOperateInitialAdmin).With(h.RequiredRole([]domain.Role{domain.RoleManager})).Delete("/", h.DeleteEmployee)
				r.With(h.RequiredRole([]domain.Role{domain.RoleManager})).Patch("/password", h.UpdateEmployeePassword)
			})
		})

		r.Route("/shifts", func(r chi.Router) {
			r.Get("/", h.GetShifts)
			r.With(h.RequiredRole([]domain.Role{domain.RoleManager})).Post("/", h.CreateShift)
			r.With(h.RequiredRole([]domain.Role{domain.RoleManager})).Delete("/{id}", h.DeleteShift)
		})

		r.Route("/requests", func(r chi.Router) {
			r.Post("/exchange", h.CreateExchangeRequest)
			r.With(h.RequiredRole([]domain.Role{domain.RoleManager})).Post("/addition", h.CreateAdditionRequest)
			r.Post("/deletion", h.CreateDeletionRequest)
			r.Get("/pending", h.GetPendingRequests)
			r.Get("/exchange-status", h.GetExchangeStatus)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(h.approvalRequestID)
				r.Get("/", h.GetRequest)
				r.Post("/approve", h.ApproveRequest)
				r.Post("/reject", h.RejectRequest)
				r.Post("/cancel", h.CancelRequest)
			})
		})
	})
}
