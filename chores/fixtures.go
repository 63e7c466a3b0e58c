package chores

import (
	"context"
	"fmt"
	"time"
)

// DemoFamily is what LoadDemoFamily created.
type DemoFamily struct {
	Admin    Principal
	Children []Principal
	Tasks    []Task
}

// Demo PINs. Development data only.
const (
	DemoAdminPIN  = "1234"
	DemoChild1PIN = "0000"
	DemoChild2PIN = "1111"
)

// LoadDemoFamily provisions one guardian, two children and three open tasks.
func LoadDemoFamily(ctx context.Context, s *Service) (DemoFamily, error) {
	var fam DemoFamily

	admin, err := s.CreatePrincipal(ctx, "Mom", DemoAdminPIN, true)
	if err != nil {
		return fam, fmt.Errorf("create admin: %w", err)
	}
	fam.Admin = admin

	for _, c := range []struct{ name, pin string }{
		{"Child 1", DemoChild1PIN},
		{"Child 2", DemoChild2PIN},
	} {
		child, err := s.CreatePrincipal(ctx, c.name, c.pin, false)
		if err != nil {
			return fam, fmt.Errorf("create %s: %w", c.name, err)
		}
		fam.Children = append(fam.Children, child)
	}

	day := 24 * time.Hour
	now := s.now().UTC()
	drafts := []TaskDraft{
		{OwnerID: fam.Children[0].ID, Title: "Tidy up your room", Description: "The whole room, properly", Points: 10, DueAt: now.Add(day).Format(time.RFC3339)},
		{OwnerID: fam.Children[0].ID, Title: "Do your homework", Points: 5, DueAt: now.Add(2 * day).Format(time.RFC3339)},
		{OwnerID: fam.Children[1].ID, Title: "Take out the trash", Points: 3, DueAt: now.Add(day).Format(time.RFC3339)},
	}
	for _, d := range drafts {
		task, err := s.CreateTask(ctx, admin.ID, d)
		if err != nil {
			return fam, fmt.Errorf("create task %q: %w", d.Title, err)
		}
		fam.Tasks = append(fam.Tasks, task)
	}
	return fam, nil
}
