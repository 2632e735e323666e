package summary

import (
	"strconv"

	"tallybot/internal/registry"
	"tallybot/pkg/tgui"
)

const emptyList = "—"

func renderDeadline(rep Report) tgui.H {
	return tgui.JoinH("\n\n",
		tgui.B("Deadline passed")+": "+tgui.Esc(rep.DeadlineTitle),
		tgui.B("Reported")+":\n"+userList(rep.Reported, "✅"),
		tgui.B("Missing")+":\n"+userList(rep.Missing, "❌"),
	)
}

func renderStatus(reports []Report) tgui.H {
	parts := make([]tgui.H, 0, len(reports)+1)
	parts = append(parts, tgui.B("Today's status"))
	for _, rep := range reports {
		parts = append(parts, tgui.JoinH("\n",
			tgui.B(rep.DeadlineTitle)+" ("+tgui.Esc(rep.DeadlineTag)+")",
			tgui.B("Reported")+":",
			userList(rep.Reported, ""),
			tgui.B("Missing")+":",
			userList(rep.Missing, ""),
		))
	}
	return tgui.JoinH("\n\n", parts...)
}

func userList(users []registry.UserRef, marker string) tgui.H {
	if len(users) == 0 {
		return emptyList
	}
	lines := make([]tgui.H, 0, len(users))
	for _, u := range users {
		display := u.Display()
		if marker != "" {
			display = marker + " " + display
		}
		lines = append(lines, "• "+tgui.Esc(display)+" ("+tgui.Code(strconv.FormatInt(u.ID, 10))+")")
	}
	return tgui.JoinH("\n", lines...)
}
