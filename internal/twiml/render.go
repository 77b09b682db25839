// Package twiml renders call-control decisions as TwiML documents.
//
// Rendering is pure: the decision logic in the call package never sees the
// document format.
package twiml

import (
	"errors"
	"fmt"

	tw "github.com/twilio/twilio-go/twiml"

	"github.com/shiv6146/buzzer-bridge/internal/models"
)

// ContentType is the media type of rendered documents
const ContentType = "application/xml"

// Render maps a decision to a TwiML document
func Render(d models.Decision) (string, error) {
	verbs, err := verbsFor(d)
	if err != nil {
		return "", err
	}
	return tw.Voice(verbs)
}

func verbsFor(d models.Decision) ([]tw.Element, error) {
	switch d.Kind {
	case models.DecisionEmpty:
		return nil, nil

	case models.DecisionJoinImmediately:
		if d.Conference == "" {
			return nil, errors.New("twiml: conference required for join")
		}
		return []tw.Element{conferenceDial(d.Conference, true, "")}, nil

	case models.DecisionJoinOnHold:
		if d.Conference == "" {
			return nil, errors.New("twiml: conference required for join")
		}
		var verbs []tw.Element
		if d.Announce != "" {
			verbs = append(verbs, &tw.VoiceSay{Message: d.Announce})
		}
		return append(verbs, conferenceDial(d.Conference, false, d.HoldURL)), nil

	case models.DecisionTerminate:
		return []tw.Element{&tw.VoiceHangup{}}, nil

	case models.DecisionForward:
		if d.ForwardTo == "" {
			return nil, errors.New("twiml: forward target required")
		}
		return []tw.Element{&tw.VoiceDial{Number: d.ForwardTo}}, nil

	case models.DecisionPlayHold:
		if d.AudioURL == "" {
			// Nothing to play; silence keeps the leg waiting
			return []tw.Element{&tw.VoicePause{Length: "10"}}, nil
		}
		return []tw.Element{&tw.VoicePlay{Url: d.AudioURL}}, nil
	}

	return nil, fmt.Errorf("twiml: unknown decision %q", d.Kind)
}

// conferenceDial joins the named conference. Every leg ends the conference
// when it leaves.
func conferenceDial(name string, start bool, waitURL string) tw.Element {
	conf := &tw.VoiceConference{
		Name:                   name,
		StartConferenceOnEnter: boolAttr(start),
		EndConferenceOnExit:    "true",
	}
	if waitURL != "" {
		conf.WaitUrl = waitURL
		conf.WaitMethod = "GET"
	}
	return &tw.VoiceDial{InnerElements: []tw.Element{conf}}
}

func boolAttr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
