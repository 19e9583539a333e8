package main

import (
	"testing"

	"github.com/opsforge/hookd/internal/hooks"
)

func configuredClasses() []hooks.Class {
	return []hooks.Class{
		{Name: hooks.ClassProlog, Pattern: "/etc/hookd/prolog.d/*.sh", MaxWait: 30},
		{Name: hooks.ClassEpilog, Pattern: "/etc/hookd/epilog.d/*.sh", MaxWait: -1},
	}
}

func findClass(t *testing.T, classes []hooks.Class, name string) hooks.Class {
	t.Helper()
	for _, c := range classes {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("class %q not found", name)
	return hooks.Class{}
}

func TestOverrideClass_PatternOnly(t *testing.T) {
	classes := overrideClass(configuredClasses(), hooks.ClassProlog, "/tmp/test.d/*.sh", 0, false)

	c := findClass(t, classes, hooks.ClassProlog)
	if c.Pattern != "/tmp/test.d/*.sh" {
		t.Errorf("pattern = %q", c.Pattern)
	}
	if c.MaxWait != 30 {
		t.Errorf("unset budget changed configured one: %d", c.MaxWait)
	}
}

func TestOverrideClass_ExplicitZeroBudget(t *testing.T) {
	classes := overrideClass(configuredClasses(), hooks.ClassProlog, "", 0, true)

	c := findClass(t, classes, hooks.ClassProlog)
	if c.MaxWait != 0 {
		t.Errorf("explicit zero budget not applied: %d", c.MaxWait)
	}
	if c.Pattern != "/etc/hookd/prolog.d/*.sh" {
		t.Errorf("empty pattern override clobbered configured one: %q", c.Pattern)
	}
}

func TestOverrideClass_BudgetOverride(t *testing.T) {
	classes := overrideClass(configuredClasses(), hooks.ClassEpilog, "", 15, true)

	if got := findClass(t, classes, hooks.ClassEpilog).MaxWait; got != 15 {
		t.Errorf("budget = %d, want 15", got)
	}
}

func TestOverrideClass_NewClassDefaultsUnbounded(t *testing.T) {
	classes := overrideClass(nil, hooks.ClassHealthCheck, "/tmp/health.d/*.sh", 0, false)

	c := findClass(t, classes, hooks.ClassHealthCheck)
	if c.MaxWait != -1 {
		t.Errorf("new class budget = %d, want -1", c.MaxWait)
	}
	if c.Pattern != "/tmp/health.d/*.sh" {
		t.Errorf("pattern = %q", c.Pattern)
	}
}

func TestOverrideClass_NewClassWithBudget(t *testing.T) {
	classes := overrideClass(nil, hooks.ClassProlog, "/tmp/p.d/*.sh", 0, true)

	if got := findClass(t, classes, hooks.ClassProlog).MaxWait; got != 0 {
		t.Errorf("budget = %d, want 0", got)
	}
}
