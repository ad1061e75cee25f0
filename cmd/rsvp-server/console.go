package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"wedding-rsvp/internal/handler"
	"wedding-rsvp/internal/models"
)

// console is the operator menu on stdin, enabled with CONSOLE=true.
type console struct {
	guests  *handler.GuestHandler
	checkIn *handler.CheckInHandler
	stats   *handler.StatsHandler
}

// run returns when the operator exits or input ends.
func (c *console) run(ctx context.Context, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)

	for ctx.Err() == nil {
		fmt.Fprintln(out, "\nCommands:")
		fmt.Fprintln(out, "  1. Register guest")
		fmt.Fprintln(out, "  2. View all guests")
		fmt.Fprintln(out, "  3. View guests by status")
		fmt.Fprintln(out, "  4. Check in guest")
		fmt.Fprintln(out, "  5. View statistics")
		fmt.Fprintln(out, "  6. Exit")
		fmt.Fprint(out, "\nEnter command (1-6): ")

		if !scanner.Scan() {
			return
		}

		switch strings.TrimSpace(scanner.Text()) {
		case "1":
			c.registerGuest(ctx, scanner, out)
		case "2":
			c.viewAllGuests(ctx, out)
		case "3":
			c.viewGuestsByStatus(ctx, scanner, out)
		case "4":
			c.checkInGuest(ctx, scanner, out)
		case "5":
			c.viewStats(ctx, out)
		case "6":
			fmt.Fprintln(out, "Exiting...")
			return
		default:
			fmt.Fprintln(out, "Invalid command. Please try again.")
		}
	}
}

func prompt(scanner *bufio.Scanner, out io.Writer, label string) (string, bool) {
	fmt.Fprint(out, label)
	if !scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(scanner.Text()), true
}

func (c *console) registerGuest(ctx context.Context, scanner *bufio.Scanner, out io.Writer) {
	family, ok := prompt(scanner, out, "Enter family name: ")
	if !ok {
		return
	}
	rawCount, ok := prompt(scanner, out, "Enter number of invited guests: ")
	if !ok {
		return
	}
	count, err := strconv.Atoi(rawCount)
	if err != nil {
		fmt.Fprintf(out, "Invalid number %q\n", rawCount)
		return
	}
	table, ok := prompt(scanner, out, "Enter table number (optional): ")
	if !ok {
		return
	}

	guest, err := c.guests.Register(ctx, handler.RegisterRequest{Family: family, InvitedCount: count, TableNumber: table})
	if err != nil {
		fmt.Fprintf(out, "Error registering guest: %v\n", err)
		return
	}
	fmt.Fprintf(out, "Registered %s. Access code: %s\n", guest.Family, guest.AccessCode)
}

func (c *console) viewAllGuests(ctx context.Context, out io.Writer) {
	guests, err := c.guests.FullList(ctx)
	if err != nil {
		fmt.Fprintf(out, "Error listing guests: %v\n", err)
		return
	}
	if len(guests) == 0 {
		fmt.Fprintln(out, "\nNo guests found.")
		return
	}
	fmt.Fprintf(out, "\nAll Guests (%d total):\n", len(guests))
	printGuests(out, guests)
}

func (c *console) viewGuestsByStatus(ctx context.Context, scanner *bufio.Scanner, out io.Writer) {
	fmt.Fprintln(out, "\nSelect status:")
	fmt.Fprintln(out, "  1. Pending")
	fmt.Fprintln(out, "  2. Confirmed")
	fmt.Fprintln(out, "  3. Declined")
	choice, ok := prompt(scanner, out, "Enter choice (1-3): ")
	if !ok {
		return
	}

	var status models.ConfirmationStatus
	switch choice {
	case "1":
		status = models.StatusPending
	case "2":
		status = models.StatusConfirmed
	case "3":
		status = models.StatusDeclined
	default:
		fmt.Fprintln(out, "Invalid choice.")
		return
	}

	all, err := c.guests.FullList(ctx)
	if err != nil {
		fmt.Fprintf(out, "Error listing guests: %v\n", err)
		return
	}
	var guests []*models.Guest
	for _, g := range all {
		if g.ConfirmationStatus == status {
			guests = append(guests, g)
		}
	}
	if len(guests) == 0 {
		fmt.Fprintf(out, "\nNo guests with status '%s'.\n", status)
		return
	}
	fmt.Fprintf(out, "\nGuests with status '%s' (%d total):\n", status, len(guests))
	printGuests(out, guests)
}

func (c *console) checkInGuest(ctx context.Context, scanner *bufio.Scanner, out io.Writer) {
	code, ok := prompt(scanner, out, "Enter access code: ")
	if !ok {
		return
	}
	res, err := c.checkIn.Scan(ctx, code)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "%s checked in at %s (table %s)\n", res.Guest.Family, res.CheckInTime, res.Guest.TableNumber)
}

func (c *console) viewStats(ctx context.Context, out io.Writer) {
	s, err := c.stats.Summary(ctx)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "\nInvited families: %d\nChecked in: %d\n", s.TotalInvited, s.TotalCheckedIn)
}

func printGuests(out io.Writer, guests []*models.Guest) {
	fmt.Fprintln(out, strings.Repeat("-", 60))
	for _, g := range guests {
		fmt.Fprintf(out, "Family: %s\n", g.Family)
		fmt.Fprintf(out, "Code: %s\n", g.AccessCode)
		fmt.Fprintf(out, "Invited: %d  Confirmed: %d  Table: %s\n", g.InvitedCount, g.ConfirmedCount, g.TableNumber)
		fmt.Fprintf(out, "Status: %s\n", g.ConfirmationStatus)
		if g.CheckInTime != nil {
			fmt.Fprintf(out, "Checked in: %s\n", g.CheckInTime.Format("2006-01-02 15:04:05"))
		}
		fmt.Fprintln(out, strings.Repeat("-", 60))
	}
}
