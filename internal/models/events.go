package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ===========================================
// EVENT TYPES
// ===========================================

// EventType identifies what happened to an ad.
type EventType string

const (
	EventImpression EventType = "impression"
	EventClick      EventType = "click"
	EventConversion EventType = "conversion"
	EventView       EventType = "view"
)

// EventTypes lists every tracked event type.
var EventTypes = []EventType{EventImpression, EventClick, EventConversion, EventView}

// Valid reports whether t is one of the tracked event types.
func (t EventType) Valid() bool {
	switch t {
	case EventImpression, EventClick, EventConversion, EventView:
		return true
	}
	return false
}

// DeviceType is the coarse device class an event came from.
type DeviceType string

const (
	DeviceDesktop DeviceType = "desktop"
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
)

// DeviceTypes lists every known device class.
var DeviceTypes = []DeviceType{DeviceDesktop, DeviceMobile, DeviceTablet}

// Valid reports whether d is a known device class.
func (d DeviceType) Valid() bool {
	switch d {
	case DeviceDesktop, DeviceMobile, DeviceTablet:
		return true
	}
	return false
}

// ===========================================
// EVENT
// ===========================================

// Location is the geography attached to an event.
type Location struct {
	Country string `json:"country,omitempty"`
	City    string `json:"city,omitempty"`
}

// EventMetadata carries the optional context of an event. Every field may be
// empty; breakdowns report empty values under UnknownDimension.
type EventMetadata struct {
	DeviceType DeviceType `json:"deviceType,omitempty"`
	Browser    string     `json:"browser,omitempty"`
	OS         string     `json:"os,omitempty"`
	Location   *Location  `json:"location,omitempty"`
	Referrer   string     `json:"referrer,omitempty"`
	IPAddress  string     `json:"ipAddress,omitempty"`
}

// Country returns the event country or "" when absent.
func (m EventMetadata) Country() string {
	if m.Location == nil {
		return ""
	}
	return m.Location.Country
}

// Event is a single tracked occurrence tied to a campaign. Events are
// append-only: once stored they are never changed.
type Event struct {
	ID         string        `json:"id"`
	CampaignID string        `json:"campaignId"`
	CreativeID string        `json:"creativeId,omitempty"`
	Type       EventType     `json:"eventType"`
	Timestamp  time.Time     `json:"timestamp"`
	Value      float64       `json:"value"`
	Metadata   EventMetadata `json:"metadata"`
}

// UnknownDimension labels breakdown rows whose source events did not carry
// the dimension.
const UnknownDimension = "unknown"

var (
	errMissingCampaign = errors.New("campaignId is required")
	errNegativeValue   = errors.New("value must be a non-negative number")
)

// Validate checks the fields an event must carry before it is stored.
func (e *Event) Validate() error {
	if e.CampaignID == "" {
		return errMissingCampaign
	}
	if !e.Type.Valid() {
		return fmt.Errorf("invalid eventType %q", e.Type)
	}
	if e.Metadata.DeviceType != "" && !e.Metadata.DeviceType.Valid() {
		return fmt.Errorf("invalid deviceType %q", e.Metadata.DeviceType)
	}
	if math.IsNaN(e.Value) || math.IsInf(e.Value, 0) || e.Value < 0 {
		return errNegativeValue
	}
	return nil
}
