// internal/handlers/mqtt.go
package handlers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"sphero-behavior/internal/config"
	"sphero-behavior/internal/interfaces"
	"sphero-behavior/internal/messaging"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Control response codes.
const (
	ControlSuccess  = "S"
	ControlFailure  = "F"
	ControlRejected = "R"
)

// ControlResponse is published on the control/response topic.
type ControlResponse struct {
	Command   string    `json:"command"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// =============================================================================
// Control Handler
// =============================================================================

// ControlHandler accepts text commands on the control topic:
//
//	goto <state> | routine <name> | key <key> | voice
type ControlHandler struct {
	behavior      Behavior
	publisher     interfaces.MessagePublisher
	logger        interfaces.Logger
	responseTopic string
	phrase        string

	processingMutex sync.Mutex
	isProcessing    bool
}

func NewControlHandler(
	b Behavior,
	publisher interfaces.MessagePublisher,
	router *messaging.Router,
	cfg *config.Config,
	logger interfaces.Logger,
) *ControlHandler {
	h := &ControlHandler{
		behavior:      b,
		publisher:     publisher,
		logger:        logger,
		responseTopic: cfg.Topic("control/response"),
		phrase:        strings.ToLower(strings.TrimSpace(cfg.VoicePhrase)),
	}
	router.Handle(cfg.Topic("control"), h.HandleCommand)
	return h
}

func (h *ControlHandler) HandleCommand(client mqtt.Client, msg mqtt.Message) {
	commandStr := strings.TrimSpace(string(msg.Payload()))
	h.logger.Infof("Received control command: %s", commandStr)

	fields := strings.Fields(commandStr)
	if len(fields) == 0 {
		h.respond(commandStr, ControlFailure, "empty command")
		return
	}

	h.processingMutex.Lock()
	if h.isProcessing {
		h.processingMutex.Unlock()
		errMsg := "Command rejected: Another command is currently processing"
		h.logger.Warnf("Command %s rejected: %s", commandStr, errMsg)
		h.respond(commandStr, ControlRejected, errMsg)
		return
	}
	h.isProcessing = true
	h.processingMutex.Unlock()

	go h.processCommand(commandStr, strings.ToLower(fields[0]), fields[1:])
}

func (h *ControlHandler) processCommand(commandStr, action string, args []string) {
	defer func() {
		h.processingMutex.Lock()
		h.isProcessing = false
		h.processingMutex.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var err error
	switch {
	case action == "goto" && len(args) == 1:
		err = h.behavior.Goto(ctx, args[0])
	case action == "routine" && len(args) == 1:
		err = h.behavior.RunRoutine(ctx, args[0])
	case action == "key" && len(args) == 1:
		err = h.behavior.PressKey(strings.ToLower(args[0]))
	case action == "voice" && len(args) == 0:
		err = h.behavior.Say(h.phrase)
	default:
		err = fmt.Errorf("unknown command %q", commandStr)
	}

	if err != nil {
		h.logger.Errorf("Control command %s failed: %v", commandStr, err)
		h.respond(commandStr, ControlFailure, err.Error())
		return
	}
	h.respond(commandStr, ControlSuccess, "")
}

func (h *ControlHandler) respond(command, status, message string) {
	resp := ControlResponse{
		Command:   command,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
	if err := h.publisher.Publish(h.responseTopic, 0, false, resp); err != nil {
		h.logger.Errorf("Failed to publish control response: %v", err)
	}
}
