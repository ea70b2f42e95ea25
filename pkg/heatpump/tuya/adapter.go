package tuya

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Smooother/poolheating/pkg/state"
	"github.com/sirupsen/logrus"
)

// request signing is handled by the gateway, we only carry the token.
var httpClient = &http.Client{
	Timeout: time.Second * 10,
}

type Tuya struct {
	server   string
	token    string
	deviceID string
}

func New(server, token, deviceID string) *Tuya {
	return &Tuya{
		server:   server,
		token:    token,
		deviceID: deviceID,
	}
}

type statusResponse struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg"`
	Online  bool   `json:"online"`
	Result  []struct {
		Code  string      `json:"code"`
		Value interface{} `json:"value"`
	} `json:"result"`
}

type commandRequest struct {
	Commands []command `json:"commands"`
}

type command struct {
	Code  string      `json:"code"`
	Value interface{} `json:"value"`
}

func (t *Tuya) Status(ctx context.Context) (*state.Status, error) {
	u := fmt.Sprintf("%s/v1.0/devices/%s/status", t.server, t.deviceID)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Add("Authorization", t.token)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("error fetching device status StatusCode: %d", resp.StatusCode)
	}

	response := &statusResponse{}
	err = json.NewDecoder(resp.Body).Decode(response)
	if err != nil {
		return nil, err
	}
	if !response.Success {
		return nil, fmt.Errorf("device status request rejected: %s", response.Msg)
	}

	s := &state.Status{
		DeviceID:   t.deviceID,
		Online:     response.Online,
		Power:      state.PowerOff,
		Source:     state.SourcePolled,
		ObservedAt: time.Now(),
	}
	for _, dp := range response.Result {
		switch dp.Code {
		case "temp_set":
			if v, ok := toFloat(dp.Value); ok {
				s.Setpoint = v
			}
		case "temp_current":
			if v, ok := toFloat(dp.Value); ok {
				f := v
				s.WaterTemp = &f
			}
		case "temp_out":
			if v, ok := toFloat(dp.Value); ok {
				f := v
				s.WaterOutTemp = &f
			}
		case "switch":
			if on, ok := dp.Value.(bool); ok && on {
				s.Power = state.PowerOn
			}
		case "work_state":
			// heating|standby|off as reported by the pump itself
			if v, ok := dp.Value.(string); ok && v == "standby" && s.Power != state.PowerOff {
				s.Power = state.PowerStandby
			}
		case "fault":
			if v, ok := toFloat(dp.Value); ok {
				alarm := v != 0
				s.Alarm = &alarm
			}
		}
	}
	return s, nil
}

func (t *Tuya) SetSetpoint(ctx context.Context, value float64) error {
	logrus.Debugf("tuya: sending temp_set %.1f to %s", value, t.deviceID)
	return t.sendCommands(ctx, []command{{Code: "temp_set", Value: value}})
}

func (t *Tuya) SetPower(ctx context.Context, on bool) error {
	logrus.Infof("tuya: sending switch %t to %s", on, t.deviceID)
	return t.sendCommands(ctx, []command{{Code: "switch", Value: on}})
}

func (t *Tuya) sendCommands(ctx context.Context, commands []command) error {
	u := fmt.Sprintf("%s/v1.0/devices/%s/commands", t.server, t.deviceID)

	body, err := json.Marshal(&commandRequest{Commands: commands})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", u, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Add("Authorization", t.token)

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return fmt.Errorf("error sending device commands StatusCode: %d", resp.StatusCode)
	}

	response := &statusResponse{}
	err = json.NewDecoder(resp.Body).Decode(response)
	if err != nil {
		return err
	}
	if !response.Success {
		return fmt.Errorf("device command rejected: %s", response.Msg)
	}
	return nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
