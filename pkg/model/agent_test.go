package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/hindsight/pkg/model"
)

func TestDefaultPersonalityIsNeutral(t *testing.T) {
	p := model.DefaultPersonality()
	for name, v := range p.Traits() {
		if v != 0.5 {
			t.Errorf("trait %s = %f, want 0.5", name, v)
		}
	}
	gt.NoError(t, p.Validate())
}

func TestPersonalityValidate(t *testing.T) {
	p := model.DefaultPersonality()
	p.Openness = 1.2
	err := p.Validate()
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrValidation))
}

func TestPersonalityPatch(t *testing.T) {
	patch := model.PersonalityPatch{"openness": 0.9, "neuroticism": 0.1}
	gt.NoError(t, patch.Validate())

	p := patch.Apply(model.DefaultPersonality())
	gt.V(t, p.Openness).Equal(0.9)
	gt.V(t, p.Neuroticism).Equal(0.1)
	gt.V(t, p.Agreeableness).Equal(0.5)
}

func TestPersonalityPatchRejectsUnknownTrait(t *testing.T) {
	err := model.PersonalityPatch{"charisma": 0.9}.Validate()
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrValidation))
}

func TestPersonalityPatchRejectsOutOfRange(t *testing.T) {
	gt.Error(t, model.PersonalityPatch{"openness": -0.1}.Validate())
	gt.Error(t, model.PersonalityPatch{"openness": 1.01}.Validate())
	gt.Error(t, model.PersonalityPatch{}.Validate())
}

func TestAgentIDValidate(t *testing.T) {
	gt.NoError(t, model.AgentID("alice").Validate())
	gt.Error(t, model.AgentID("").Validate())
}

func TestAgentProfileClone(t *testing.T) {
	p := model.NewAgentProfile("alice", time.Now().UTC())
	c := p.Clone()
	c.Background = "changed"
	gt.V(t, p.Background).Equal("")
}
