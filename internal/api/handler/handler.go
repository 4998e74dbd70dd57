package handler

import (
	"regexp"

	"chatrelay/backend/internal/chathub"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Handler serves the relay's HTTP surface on top of the room hub.
type Handler struct {
	Hub            *chathub.ManagerService
	AllowedOrigins []string

	log      zerolog.Logger
	validate *validator.Validate
}

var roomNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func NewHandler(hub *chathub.ManagerService, log zerolog.Logger, allowedOrigins []string) *Handler {
	v := validator.New()
	// Room names end up in store keys and URLs.
	if err := v.RegisterValidation("roomname", func(fl validator.FieldLevel) bool {
		return roomNamePattern.MatchString(fl.Field().String())
	}); err != nil {
		panic("handler: registering roomname validation: " + err.Error())
	}

	return &Handler{
		Hub:            hub,
		AllowedOrigins: allowedOrigins,
		log:            log.With().Str("component", "http").Logger(),
		validate:       v,
	}
}

func (h *Handler) validRoom(room string) bool {
	return h.validate.Var(room, "required,max=64,roomname") == nil
}
