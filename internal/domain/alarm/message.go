package alarm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// coreTimeLayout is the layout of core timestamps; fractional seconds are optional.
const coreTimeLayout = "2006-01-02T15:04:05"

// alarmValueType is the valueType of messages that carry alarms.
const alarmValueType = "ALARM"

var (
	// ErrMissingRunningID is returned for messages without a fullRunningId.
	ErrMissingRunningID = errors.New("message has no full running id")
	// ErrMissingTimestamp is returned for messages without a sentToBsdbTStamp.
	ErrMissingTimestamp = errors.New("message has no sentToBsdbTStamp")
	// ErrNotAlarm is returned when an alarm is requested from a non-alarm message.
	ErrNotAlarm = errors.New("message does not carry an alarm")
)

// Message is an inbound IASIO message as published by the measurement core.
type Message struct {
	Value                      string            `json:"value"`
	ValueType                  string            `json:"valueType"`
	Mode                       string            `json:"mode"`
	Validity                   string            `json:"iasValidity"`
	FullRunningID              string            `json:"fullRunningId"`
	DependenciesFullRunningIDs []string          `json:"depsFullRunningIds"`
	Properties                 map[string]string `json:"props"`
	SentToBsdbTStamp           string            `json:"sentToBsdbTStamp"`
	ProductionTStamp           string            `json:"productionTStamp,omitempty"`
	ReadFromMonSysTStamp       string            `json:"readFromMonSysTStamp,omitempty"`
	ReadFromBsdbTStamp         string            `json:"readFromBsdbTStamp,omitempty"`
	DasuProductionTStamp       string            `json:"dasuProductionTStamp,omitempty"`
	PluginProductionTStamp     string            `json:"pluginProductionTStamp,omitempty"`
	SentToConverterTStamp      string            `json:"sentToConverterTStamp,omitempty"`
	ReceivedFromPluginTStamp   string            `json:"receivedFromPluginTStamp,omitempty"`
	ConvertedProductionTStamp  string            `json:"convertedProductionTStamp,omitempty"`
}

// ParseMessage decodes a JSON-encoded core message and checks the fields every message needs.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	if strings.TrimSpace(msg.FullRunningID) == "" {
		return nil, ErrMissingRunningID
	}

	if strings.TrimSpace(msg.SentToBsdbTStamp) == "" {
		return nil, ErrMissingTimestamp
	}

	return &msg, nil
}

// IsAlarm reports whether the message carries an alarm rather than a plain value.
func (m *Message) IsAlarm() bool {
	return strings.EqualFold(m.ValueType, alarmValueType)
}

// CoreID returns the core id encoded in the full running id.
func (m *Message) CoreID() string {
	return CoreIDFromRunningID(m.FullRunningID)
}

// Alarm converts the message into an Alarm record.
func (m *Message) Alarm() (*Alarm, error) {
	if !m.IsAlarm() {
		return nil, ErrNotAlarm
	}

	value, err := ParseValue(m.Value)
	if err != nil {
		return nil, err
	}

	mode, validity, timestamp, err := m.common()
	if err != nil {
		return nil, err
	}

	dependencies := make([]string, 0, len(m.DependenciesFullRunningIDs))
	for _, runningID := range m.DependenciesFullRunningIDs {
		dependencies = append(dependencies, CoreIDFromRunningID(runningID))
	}

	return &Alarm{
		CoreID:        m.CoreID(),
		RunningID:     m.FullRunningID,
		Value:         value,
		Mode:          mode,
		Validity:      validity,
		CoreTimestamp: timestamp,
		Dependencies:  dependencies,
		Properties:    m.Properties,
		Timestamps:    m.timestamps(),
	}, nil
}

// IASValue converts the message into an IASValue record.
func (m *Message) IASValue() (*IASValue, error) {
	mode, validity, timestamp, err := m.common()
	if err != nil {
		return nil, err
	}

	return &IASValue{
		CoreID:        m.CoreID(),
		RunningID:     m.FullRunningID,
		Value:         m.Value,
		Mode:          mode,
		Validity:      validity,
		CoreTimestamp: timestamp,
		Timestamps:    m.timestamps(),
	}, nil
}

func (m *Message) common() (Mode, Validity, int64, error) {
	mode, err := ParseMode(m.Mode)
	if err != nil {
		return 0, 0, 0, err
	}

	validity, err := ParseValidity(m.Validity)
	if err != nil {
		return 0, 0, 0, err
	}

	timestamp, err := ParseCoreTime(m.SentToBsdbTStamp)
	if err != nil {
		return 0, 0, 0, err
	}

	return mode, validity, timestamp, nil
}

// timestamps collects the non-empty transport timestamps for passthrough.
func (m *Message) timestamps() map[string]string {
	result := make(map[string]string)

	for key, value := range map[string]string{
		"productionTStamp":          m.ProductionTStamp,
		"sentToBsdbTStamp":          m.SentToBsdbTStamp,
		"readFromMonSysTStamp":      m.ReadFromMonSysTStamp,
		"readFromBsdbTStamp":        m.ReadFromBsdbTStamp,
		"dasuProductionTStamp":      m.DasuProductionTStamp,
		"pluginProductionTStamp":    m.PluginProductionTStamp,
		"sentToConverterTStamp":     m.SentToConverterTStamp,
		"receivedFromPluginTStamp":  m.ReceivedFromPluginTStamp,
		"convertedProductionTStamp": m.ConvertedProductionTStamp,
	} {
		if value != "" {
			result[key] = value
		}
	}

	return result
}

// ParseCoreTime converts a core timestamp such as "2018-03-14T15:09:26.123" into
// epoch milliseconds. Core timestamps carry no zone and are read as UTC.
func ParseCoreTime(s string) (int64, error) {
	t, err := time.Parse(coreTimeLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse core timestamp %q: %w", s, err)
	}

	return t.UnixMilli(), nil
}

// FormatCoreTime renders epoch milliseconds in the core timestamp layout.
func FormatCoreTime(millis int64) string {
	return time.UnixMilli(millis).UTC().Format(coreTimeLayout + ".000")
}
