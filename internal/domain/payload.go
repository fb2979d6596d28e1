package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// MaxPayloadBytes bounds the raw payload accepted from clients.
	MaxPayloadBytes = 256 * 1024
	// MaxPromptChars bounds free-text prompt fields.
	MaxPromptChars = 2000
	maxAssetURLLen = 2048
)

type babyImagePayload struct {
	FatherImageURL string `json:"father_image_url"`
	MotherImageURL string `json:"mother_image_url"`
	Gender         string `json:"gender"`
}

type babyPodcastPayload struct {
	ImageURL string `json:"image_url"`
	AudioURL string `json:"audio_url"`
	Script   string `json:"script"`
}

type textToVideoPayload struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
}

type imageToVideoPayload struct {
	ImageURL string `json:"image_url"`
	Prompt   string `json:"prompt"`
}

type lipSyncPayload struct {
	VideoURL string `json:"video_url"`
	ImageURL string `json:"image_url"`
	AudioURL string `json:"audio_url"`
}

type earthZoomPayload struct {
	ImageURL string `json:"image_url"`
}

// ValidatePayload checks the tool-specific structural constraints of a raw
// submission payload. Purely local: no I/O, no provider contact.
func ValidatePayload(tool Tool, raw []byte) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: payload required", ErrInvalidPayload)
	}
	if len(raw) > MaxPayloadBytes {
		return fmt.Errorf("%w: payload exceeds %d bytes", ErrInvalidPayload, MaxPayloadBytes)
	}
	switch tool {
	case ToolBabyImage:
		var p babyImagePayload
		if err := decodePayload(raw, &p); err != nil {
			return err
		}
		if err := requireAssetURL("father_image_url", p.FatherImageURL); err != nil {
			return err
		}
		if err := requireAssetURL("mother_image_url", p.MotherImageURL); err != nil {
			return err
		}
		switch p.Gender {
		case "", "boy", "girl":
		default:
			return fmt.Errorf("%w: gender must be boy or girl", ErrInvalidPayload)
		}
	case ToolBabyPodcast:
		var p babyPodcastPayload
		if err := decodePayload(raw, &p); err != nil {
			return err
		}
		if err := requireAssetURL("image_url", p.ImageURL); err != nil {
			return err
		}
		if p.AudioURL == "" && strings.TrimSpace(p.Script) == "" {
			return fmt.Errorf("%w: audio_url or script required", ErrInvalidPayload)
		}
		if p.AudioURL != "" {
			if err := requireAssetURL("audio_url", p.AudioURL); err != nil {
				return err
			}
		}
		if len(p.Script) > MaxPromptChars {
			return fmt.Errorf("%w: script exceeds %d characters", ErrInvalidPayload, MaxPromptChars)
		}
	case ToolTextToVideo:
		var p textToVideoPayload
		if err := decodePayload(raw, &p); err != nil {
			return err
		}
		if err := requirePrompt(p.Prompt); err != nil {
			return err
		}
		switch p.AspectRatio {
		case "", "16:9", "9:16", "1:1":
		default:
			return fmt.Errorf("%w: unsupported aspect_ratio %q", ErrInvalidPayload, p.AspectRatio)
		}
	case ToolImageToVideo:
		var p imageToVideoPayload
		if err := decodePayload(raw, &p); err != nil {
			return err
		}
		if err := requireAssetURL("image_url", p.ImageURL); err != nil {
			return err
		}
		if len(p.Prompt) > MaxPromptChars {
			return fmt.Errorf("%w: prompt exceeds %d characters", ErrInvalidPayload, MaxPromptChars)
		}
	case ToolLipSync:
		var p lipSyncPayload
		if err := decodePayload(raw, &p); err != nil {
			return err
		}
		if p.VideoURL == "" && p.ImageURL == "" {
			return fmt.Errorf("%w: video_url or image_url required", ErrInvalidPayload)
		}
		if p.VideoURL != "" {
			if err := requireAssetURL("video_url", p.VideoURL); err != nil {
				return err
			}
		}
		if p.ImageURL != "" {
			if err := requireAssetURL("image_url", p.ImageURL); err != nil {
				return err
			}
		}
		if err := requireAssetURL("audio_url", p.AudioURL); err != nil {
			return err
		}
	case ToolEarthZoom:
		var p earthZoomPayload
		if err := decodePayload(raw, &p); err != nil {
			return err
		}
		if err := requireAssetURL("image_url", p.ImageURL); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown tool %q", ErrInvalidPayload, tool)
	}
	return nil
}

func decodePayload(raw []byte, dst any) error {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func requirePrompt(prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return fmt.Errorf("%w: prompt required", ErrInvalidPayload)
	}
	if len(prompt) > MaxPromptChars {
		return fmt.Errorf("%w: prompt exceeds %d characters", ErrInvalidPayload, MaxPromptChars)
	}
	return nil
}

func requireAssetURL(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s required", ErrInvalidPayload, field)
	}
	if len(value) > maxAssetURLLen {
		return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidPayload, field, maxAssetURLLen)
	}
	lower := strings.ToLower(value)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return fmt.Errorf("%w: %s must be an http(s) URL", ErrInvalidPayload, field)
	}
	return nil
}
