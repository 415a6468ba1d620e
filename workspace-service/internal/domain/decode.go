package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrInvalid     = errors.New("invalid message")
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator with the custom tags registered.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
	})
	return validate
}

// Decode parses and validates one client frame.
func Decode(raw []byte) (Inbound, error) {
	var base BaseMessage
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	var msg Inbound
	switch base.Type {
	case MsgTypePing:
		return PingMessage{}, nil
	case MsgTypeArtifactList:
		return ArtifactListMessage{}, nil
	case MsgTypeHello:
		msg = &HelloMessage{}
	case MsgTypeChat:
		msg = &ChatMessage{}
	case MsgTypeMemoryAdd:
		msg = &MemoryAddMessage{}
	case MsgTypeMemoryRemove:
		msg = &MemoryRemoveMessage{}
	case MsgTypeMemoryToggle:
		msg = &MemoryToggleMessage{}
	case MsgTypeSettingsUpdate:
		msg = &SettingsUpdateMessage{}
	case MsgTypeArtifactCreate:
		msg = &ArtifactCreateMessage{}
	case MsgTypeArtifactDelete:
		msg = &ArtifactDeleteMessage{}
	case MsgTypeArtifactGet:
		msg = &ArtifactGetMessage{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, base.Type)
	}

	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, base.Type, err)
	}
	if err := Validator().Struct(msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, base.Type, err)
	}
	return msg, nil
}
