package domain

import (
	"fmt"
	"strings"
)

func werewolfAction(g *Game, p *Player, a Action) error {
	if a.Type != ActionKill {
		return ErrUnknownActionType
	}
	if _, err := g.livingTarget(a.TargetID); err != nil {
		return err
	}
	p.recordNightAction(ActionKill, a.TargetID, a.Confirmed)
	return nil
}

func werewolfNightInfo(g *Game, p *Player) *NightInfo {
	if g.Phase != PhaseNight {
		return nil
	}
	prompt := "Choose a victim with your pack."
	if len(g.AliveWerewolves()) > 1 {
		prompt = "Agree on a victim with your pack. All werewolves must pick the same player."
	}
	return &NightInfo{Prompt: prompt, ActionsAvailable: []ActionType{ActionKill, ActionSkip}}
}

// seerAction reveals the target as soon as the check is confirmed. A seer
// inspects at most one player per night.
func seerAction(g *Game, p *Player, a Action) error {
	if a.Type != ActionCheck {
		return ErrUnknownActionType
	}
	if a.TargetID == p.ID {
		return ErrInvalidTarget
	}
	if _, err := g.livingTarget(a.TargetID); err != nil {
		return err
	}
	if p.HasActed() && p.NightActionType == ActionCheck && p.NightActionTarget != a.TargetID {
		return ErrAlreadyChecked
	}
	p.recordNightAction(ActionCheck, a.TargetID, a.Confirmed)
	if a.Confirmed {
		g.addReveal(p.ID, a.TargetID)
	}
	return nil
}

func seerNightInfo(g *Game, p *Player) *NightInfo {
	if g.Phase != PhaseNight {
		return nil
	}
	if p.HasActed() && p.NightActionType == ActionCheck {
		return &NightInfo{Prompt: "Your vision is complete for tonight.", ActionsAvailable: []ActionType{}}
	}
	return &NightInfo{Prompt: "Choose a player to inspect.", ActionsAvailable: []ActionType{ActionCheck, ActionSkip}}
}

func doctorAction(g *Game, p *Player, a Action) error {
	if a.Type != ActionSave {
		return ErrUnknownActionType
	}
	if _, err := g.livingTarget(a.TargetID); err != nil {
		return err
	}
	p.recordNightAction(ActionSave, a.TargetID, a.Confirmed)
	return nil
}

func doctorNightInfo(g *Game, p *Player) *NightInfo {
	if g.Phase != PhaseNight {
		return nil
	}
	return &NightInfo{Prompt: "Choose a player to protect tonight.", ActionsAvailable: []ActionType{ActionSave, ActionSkip}}
}

func bodyguardAction(g *Game, p *Player, a Action) error {
	if a.Type != ActionSave {
		return ErrUnknownActionType
	}
	if _, err := g.livingTarget(a.TargetID); err != nil {
		return err
	}
	if a.TargetID == p.LastProtectedTarget {
		return ErrRepeatProtection
	}
	p.recordNightAction(ActionSave, a.TargetID, a.Confirmed)
	return nil
}

func bodyguardNightInfo(g *Game, p *Player) *NightInfo {
	if g.Phase != PhaseNight {
		return nil
	}
	prompt := "Choose a player to guard tonight."
	if last, ok := g.Players[p.LastProtectedTarget]; ok {
		prompt = fmt.Sprintf("Choose a player to guard tonight. You cannot guard %s again.", last.Nickname)
	}
	return &NightInfo{Prompt: prompt, ActionsAvailable: []ActionType{ActionSave, ActionSkip}}
}

// witchAction spends a potion when it is submitted. Replacing or skipping a
// pending potion gives it back.
func witchAction(g *Game, p *Player, a Action) error {
	switch a.Type {
	case ActionHeal:
		if !p.WitchHasHeal && p.NightActionType != ActionHeal {
			return ErrResourceConsumed
		}
	case ActionPoison:
		if !p.WitchHasPoison && p.NightActionType != ActionPoison {
			return ErrResourceConsumed
		}
	default:
		return ErrUnknownActionType
	}
	if _, err := g.livingTarget(a.TargetID); err != nil {
		return err
	}

	p.recordNightAction(a.Type, a.TargetID, a.Confirmed)
	if a.Type == ActionHeal {
		p.WitchHasHeal = false
	} else {
		p.WitchHasPoison = false
	}
	return nil
}

func witchNightInfo(g *Game, p *Player) *NightInfo {
	if g.Phase != PhaseNight {
		return nil
	}
	info := &NightInfo{ActionsAvailable: []ActionType{}}
	if p.WitchHasHeal || p.NightActionType == ActionHeal {
		info.ActionsAvailable = append(info.ActionsAvailable, ActionHeal)
	}
	if p.WitchHasPoison || p.NightActionType == ActionPoison {
		info.ActionsAvailable = append(info.ActionsAvailable, ActionPoison)
	}
	info.ActionsAvailable = append(info.ActionsAvailable, ActionSkip)

	victim := g.WerewolfConsensus()
	switch {
	case victim != "":
		info.VictimID = victim
		name := victim
		if v, ok := g.Players[victim]; ok {
			name = v.Nickname
		}
		info.Prompt = fmt.Sprintf("The werewolves chose %s. Use a potion or skip.", name)
	case len(g.AliveWerewolves()) > 0:
		info.Prompt = "The werewolves are still choosing their victim."
	default:
		info.Prompt = "Use a potion or skip."
	}
	return info
}

func hunterAction(g *Game, p *Player, a Action) error {
	if a.Type != ActionRevenge {
		return ErrUnknownActionType
	}
	if a.TargetID == p.ID {
		return ErrInvalidTarget
	}
	if _, err := g.livingTarget(a.TargetID); err != nil {
		return err
	}
	p.recordNightAction(ActionRevenge, a.TargetID, a.Confirmed)
	if a.Confirmed {
		p.HunterRevengeTarget = a.TargetID
	}
	return nil
}

func hunterNightInfo(g *Game, p *Player) *NightInfo {
	switch {
	case g.Phase == PhaseHunterRevenge && g.VotedOutThisRound == p.ID:
		return &NightInfo{
			Prompt:           "You have been voted out. Choose who you take down with you.",
			ActionsAvailable: []ActionType{ActionRevenge},
		}
	case g.Phase == PhaseNight && p.IsAlive:
		return &NightInfo{
			Prompt:           "Choose who you will take down with you if you die.",
			ActionsAvailable: []ActionType{ActionRevenge, ActionSkip},
		}
	}
	return nil
}

func cupidAction(g *Game, p *Player, a Action) error {
	if a.Type != ActionLink {
		return ErrUnknownActionType
	}
	if g.TurnCount != 1 {
		return ErrCupidNotFirstNight
	}
	if len(g.Lovers) > 0 {
		return ErrLoversAlreadySet
	}
	first, second, ok := splitLink(a.TargetID)
	if !ok {
		return Invalidf("link needs two distinct players, got %q", a.TargetID)
	}
	for _, id := range []string{first, second} {
		if _, err := g.livingTarget(id); err != nil {
			return err
		}
	}
	p.recordNightAction(ActionLink, first+","+second, a.Confirmed)
	return nil
}

func cupidNightInfo(g *Game, p *Player) *NightInfo {
	if g.Phase != PhaseNight {
		return nil
	}
	if g.TurnCount == 1 && len(g.Lovers) == 0 {
		return &NightInfo{Prompt: "Choose two players to fall in love.", ActionsAvailable: []ActionType{ActionLink, ActionSkip}}
	}
	return &NightInfo{Prompt: "Your arrows are spent. Rest until morning.", ActionsAvailable: []ActionType{ActionSkip}}
}

// splitLink parses "a,b" into two distinct ids.
func splitLink(target string) (string, string, bool) {
	parts := strings.Split(target, ",")
	if len(parts) != 2 {
		return "", "", false
	}
	a, b := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if a == "" || b == "" || a == b {
		return "", "", false
	}
	return a, b, true
}
