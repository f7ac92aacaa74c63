package medic

import "fmt"

// Validate checks universal constraints on Request.
// Provider implementations may apply additional provider-specific validation.
func (r Request) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("request has no messages: %w", ErrValidation)
	}
	if r.Temperature != nil {
		if *r.Temperature < 0 || *r.Temperature > 2 {
			return fmt.Errorf("temperature must be in [0, 2], got %g: %w", *r.Temperature, ErrValidation)
		}
	}
	if r.TopP != nil {
		if *r.TopP <= 0 || *r.TopP > 1 {
			return fmt.Errorf("top_p must be in (0, 1], got %g: %w", *r.TopP, ErrValidation)
		}
	}
	if r.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative, got %d: %w", r.MaxTokens, ErrValidation)
	}
	for _, m := range r.Messages {
		if err := ValidateMessage(m); err != nil {
			return err
		}
	}
	return nil
}

// ValidateMessage checks that a message's content blocks are valid for its role.
func ValidateMessage(msg Message) error {
	switch m := msg.(type) {
	case UserMessage:
		return validateBlocks(m.Content, m.Role(), allowText|allowImage)
	case AssistantMessage:
		return validateBlocks(m.Content, m.Role(), allowText|allowThinking|allowToolCall)
	case ToolResultMessage:
		if m.ToolCallID == "" {
			return fmt.Errorf("tool result without call id: %w", ErrValidation)
		}
		return validateBlocks(m.Content, m.Role(), allowText)
	default:
		return fmt.Errorf("unknown message type %T: %w", msg, ErrValidation)
	}
}

type blockAllow uint8

const (
	allowText blockAllow = 1 << iota
	allowThinking
	allowImage
	allowToolCall
)

func validateBlocks(blocks []ContentBlock, role Role, allowed blockAllow) error {
	for _, b := range blocks {
		var bit blockAllow
		switch b.(type) {
		case TextBlock:
			bit = allowText
		case ThinkingBlock:
			bit = allowThinking
		case ImageBlock:
			bit = allowImage
		case ToolCallBlock:
			bit = allowToolCall
		default:
			return fmt.Errorf("unknown content block type %T in %s message: %w", b, role, ErrValidation)
		}
		if allowed&bit == 0 {
			return fmt.Errorf("%T not allowed in %s message: %w", b, role, ErrValidation)
		}
	}
	return nil
}
