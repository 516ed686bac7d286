package dispatch

import (
	"fmt"

	"fleetdispatch/internal/notify"
	"fleetdispatch/internal/ticket"
)

func ticketDetails(t ticket.Ticket) string {
	return fmt.Sprintf(
		"Serial: %s\nProblem: %s\nDriver phone: %s\nPlate: %s\nGarage: %s",
		t.Serial, t.Problem, t.Phone, t.Plate, t.Garage)
}

func newTicketMessage(t ticket.Ticket) string {
	return fmt.Sprintf("New ticket #%d\n%s", t.ID, ticketDetails(t))
}

func reminderMessage(t ticket.Ticket, minutes int) string {
	return fmt.Sprintf(
		"Reminder: ticket #%d is still open!\n%s\n\nNobody accepted it within %d minutes.",
		t.ID, ticketDetails(t), minutes)
}

func completionCaption(done ticket.Completed, technician string) string {
	return fmt.Sprintf(
		"Ticket #%d completed\nTechnician: %s\n%s\nCompleted: %s\nOutcome: %s\nSolution: %s",
		done.ID, technician, ticketDetails(done.Ticket),
		done.ResolvedAt.Format("2006-01-02 15:04:05"),
		done.OutcomeLabel(), done.Solution)
}

func claimButtons(ticketID int64) []notify.Button {
	return []notify.Button{
		{Label: "Accept", Action: fmt.Sprintf("accept:%d", ticketID)},
		{Label: "Reject", Action: fmt.Sprintf("reject:%d", ticketID)},
	}
}

func outcomeButtons(ticketID int64) []notify.Button {
	return []notify.Button{
		{Label: "Resolved", Action: fmt.Sprintf("resolved:%d", ticketID)},
		{Label: "Unresolved", Action: fmt.Sprintf("unresolved:%d", ticketID)},
	}
}
