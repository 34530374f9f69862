package application

import (
	"context"
	"errors"
	"testing"
)

func TestAttendanceServiceMarkAttendance(t *testing.T) {
	event := withAttendees(approvedEvent("evt-1", 5), "u1", "u2")

	t.Run("toggle on and off", func(t *testing.T) {
		events := newEventStoreStub(event)
		svc := NewAttendanceService(events, newUserDirectoryStub(), fixedNow)
		ctx := context.Background()

		on, err := svc.MarkAttendance(ctx, MarkAttendanceParams{Principal: moderator(), EventID: "evt-1", UserID: "u1"})
		if err != nil {
			t.Fatalf("MarkAttendance returned error: %v", err)
		}
		if !on.Attended || on.AttendedAt == nil || !on.AttendedAt.Equal(testNow) {
			t.Fatalf("expected attended with timestamp, got %#v", on)
		}
		if on.CheckInMethod == nil || *on.CheckInMethod != CheckInManual {
			t.Fatalf("expected manual method by default, got %v", on.CheckInMethod)
		}

		off, err := svc.MarkAttendance(ctx, MarkAttendanceParams{Principal: moderator(), EventID: "evt-1", UserID: "u1"})
		if err != nil {
			t.Fatalf("MarkAttendance returned error: %v", err)
		}
		if off.Attended || off.AttendedAt != nil || off.CheckInMethod != nil {
			t.Fatalf("expected check-in cleared, got %#v", off)
		}
	})

	t.Run("explicit value and scan method", func(t *testing.T) {
		events := newEventStoreStub(event)
		svc := NewAttendanceService(events, newUserDirectoryStub(), fixedNow)
		yes := true
		scan := CheckInScan
		for i := 0; i < 2; i++ {
			got, err := svc.MarkAttendance(context.Background(), MarkAttendanceParams{Principal: moderator(), EventID: "evt-1", UserID: "u2", Attended: &yes, Method: &scan})
			if err != nil {
				t.Fatalf("MarkAttendance returned error: %v", err)
			}
			if !got.Attended || *got.CheckInMethod != CheckInScan {
				t.Fatalf("expected attended via scan, got %#v", got)
			}
		}
	})

	badMethod := CheckInMethod("telepathy")
	cases := []struct {
		name      string
		principal Principal
		eventID   string
		userID    string
		method    *CheckInMethod
		want      error
		field     string
	}{
		{name: "creator is not moderator", principal: student("creator-1"), eventID: "evt-1", userID: "u1", want: ErrForbidden},
		{name: "missing event", principal: moderator(), eventID: "nope", userID: "u1", want: ErrNotFound},
		{name: "not registered", principal: moderator(), eventID: "evt-1", userID: "u9", want: ErrNotFound},
		{name: "bad method", principal: moderator(), eventID: "evt-1", userID: "u1", method: &badMethod, field: "checkInMethod"},
		{name: "missing user", principal: moderator(), eventID: "evt-1", field: "userId"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewAttendanceService(newEventStoreStub(event), newUserDirectoryStub(), fixedNow)
			_, err := svc.MarkAttendance(context.Background(), MarkAttendanceParams{Principal: tc.principal, EventID: tc.eventID, UserID: tc.userID, Method: tc.method})
			if tc.want != nil {
				if !errors.Is(err, tc.want) {
					t.Fatalf("expected %v, got %v", tc.want, err)
				}
				return
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) || vErr.FieldErrors[tc.field] == "" {
				t.Fatalf("expected validation error on %s, got %v", tc.field, err)
			}
		})
	}
}

func TestAttendanceServiceGetAttendees(t *testing.T) {
	event := withAttendees(approvedEvent("evt-1", 10), "u1", "u2", "u3", "u4")
	event.Attendees[2].Attended = true
	users := newUserDirectoryStub(
		User{ID: "u1", Name: "One"},
		User{ID: "u2", Name: "Two"},
		User{ID: "u3", Name: "Three"},
		User{ID: "u4", Name: "Four"},
	)

	t.Run("statistics", func(t *testing.T) {
		svc := NewAttendanceService(newEventStoreStub(event), users, fixedNow)
		report, err := svc.GetAttendees(context.Background(), student("creator-1"), "evt-1")
		if err != nil {
			t.Fatalf("GetAttendees returned error: %v", err)
		}
		want := AttendanceStats{TotalRSVPs: 4, AttendedCount: 1, PendingCount: 3, AttendanceRate: 25.0}
		if report.Stats != want {
			t.Fatalf("expected %#v, got %#v", want, report.Stats)
		}
		if len(report.Attendees) != 4 || report.Attendees[2].User.Name != "Three" {
			t.Fatalf("expected joined attendees, got %#v", report.Attendees)
		}
	})

	t.Run("unknown users are skipped", func(t *testing.T) {
		partial := newUserDirectoryStub(User{ID: "u1"}, User{ID: "u3"})
		svc := NewAttendanceService(newEventStoreStub(event), partial, fixedNow)
		report, err := svc.GetAttendees(context.Background(), moderator(), "evt-1")
		if err != nil {
			t.Fatalf("GetAttendees returned error: %v", err)
		}
		want := AttendanceStats{TotalRSVPs: 2, AttendedCount: 1, PendingCount: 1, AttendanceRate: 50.0}
		if report.Stats != want {
			t.Fatalf("expected %#v, got %#v", want, report.Stats)
		}
	})

	t.Run("empty event", func(t *testing.T) {
		svc := NewAttendanceService(newEventStoreStub(approvedEvent("evt-2", 3)), users, fixedNow)
		report, err := svc.GetAttendees(context.Background(), moderator(), "evt-2")
		if err != nil {
			t.Fatalf("GetAttendees returned error: %v", err)
		}
		if report.Stats != (AttendanceStats{}) {
			t.Fatalf("expected zero stats, got %#v", report.Stats)
		}
	})

	t.Run("forbidden for attendees", func(t *testing.T) {
		svc := NewAttendanceService(newEventStoreStub(event), users, fixedNow)
		if _, err := svc.GetAttendees(context.Background(), student("u1"), "evt-1"); !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})
}

func TestAttendanceStatsRounding(t *testing.T) {
	attendees := []AttendeeDetail{{Attendee: Attendee{Attended: true}}, {}, {}}
	if got := attendanceStats(attendees).AttendanceRate; got != 33.3 {
		t.Fatalf("expected 33.3, got %v", got)
	}
}
