// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Voltlab

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/voltlab/rkctl/pkg/rk6006"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	focusVoltageInput = iota
	focusCurrentInput
	focusOutputButton
	maxWatchFocus = focusOutputButton
)

const watchMaxLogEntries = 8

//////////////////////////////////////////////////////////////
// Model
//////////////////////////////////////////////////////////////

type watchLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

type watchModel struct {
	manager  *deviceManager
	connInfo string

	state          rk6006.DeviceState
	stats          rk6006.LinkStats
	connectionLost bool
	everConnected  bool

	voltageInput textinput.Model
	currentInput textinput.Model
	focusedField int

	eventLog []watchLogEntry

	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type watchTickMsg time.Time

type watchStateMsg struct {
	state rk6006.DeviceState
}

type watchConnectedMsg struct {
	info string
}

type watchLostMsg struct {
	cause error
}

type watchLogMsg struct {
	text    string
	isError bool
}

//////////////////////////////////////////////////////////////
// Init
//////////////////////////////////////////////////////////////

func initialWatchModel(manager *deviceManager, connInfo string) watchModel {
	vi := textinput.New()
	vi.Placeholder = "12.00"
	vi.CharLimit = 6
	vi.Width = 8
	vi.Focus()

	ci := textinput.New()
	ci.Placeholder = "1.000"
	ci.CharLimit = 6
	ci.Width = 8

	return watchModel{
		manager:        manager,
		connInfo:       connInfo,
		connectionLost: true,
		voltageInput:   vi,
		currentInput:   ci,
		focusedField:   focusVoltageInput,
	}
}

func watchTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}

func (m watchModel) Init() tea.Cmd {
	return watchTickCmd()
}

//////////////////////////////////////////////////////////////
// Update
//////////////////////////////////////////////////////////////

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case watchTickMsg:
		m.stats = m.manager.stats()
		return m, watchTickCmd()

	case watchStateMsg:
		m.state = msg.state
		return m, nil

	case watchConnectedMsg:
		m.connectionLost = false
		m.everConnected = true
		m.addLogEntry(fmt.Sprintf("connected: %s", msg.info), false)
		return m, nil

	case watchLostMsg:
		m.connectionLost = true
		if msg.cause != nil {
			m.addLogEntry(fmt.Sprintf("link lost: %v", msg.cause), true)
		} else {
			m.addLogEntry("link lost", true)
		}
		return m, nil

	case watchLogMsg:
		m.addLogEntry(msg.text, msg.isError)
		return m, nil
	}

	return m, nil
}

func (m *watchModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		m.cycleFocus(1)
		return m, nil

	case "shift+tab":
		m.cycleFocus(-1)
		return m, nil

	case "o":
		if m.connectionLost {
			m.addLogEntry("cannot toggle output: not connected", true)
			return m, nil
		}
		return m, m.manager.toggleOutput()

	case "enter":
		return m.handleEnter()
	}

	// Everything else belongs to the focused input.
	var cmd tea.Cmd
	switch m.focusedField {
	case focusVoltageInput:
		m.voltageInput, cmd = m.voltageInput.Update(msg)
	case focusCurrentInput:
		m.currentInput, cmd = m.currentInput.Update(msg)
	}
	return m, cmd
}

func (m *watchModel) cycleFocus(delta int) {
	m.focusedField = (m.focusedField + delta + maxWatchFocus + 1) % (maxWatchFocus + 1)

	if m.focusedField == focusVoltageInput {
		m.voltageInput.Focus()
	} else {
		m.voltageInput.Blur()
	}
	if m.focusedField == focusCurrentInput {
		m.currentInput.Focus()
	} else {
		m.currentInput.Blur()
	}
}

func (m *watchModel) handleEnter() (tea.Model, tea.Cmd) {
	if m.connectionLost {
		m.addLogEntry("cannot send command: not connected", true)
		return m, nil
	}

	switch m.focusedField {
	case focusVoltageInput:
		text := strings.TrimSpace(m.voltageInput.Value())
		if text == "" {
			return m, nil
		}
		volts, err := strconv.ParseFloat(text, 64)
		if err != nil {
			m.addLogEntry(fmt.Sprintf("bad voltage %q", text), true)
			return m, nil
		}
		m.voltageInput.SetValue("")
		return m, m.manager.applyVoltage(volts)

	case focusCurrentInput:
		text := strings.TrimSpace(m.currentInput.Value())
		if text == "" {
			return m, nil
		}
		amps, err := strconv.ParseFloat(text, 64)
		if err != nil {
			m.addLogEntry(fmt.Sprintf("bad current %q", text), true)
			return m, nil
		}
		m.currentInput.SetValue("")
		return m, m.manager.applyCurrent(amps)

	case focusOutputButton:
		return m, m.manager.toggleOutput()
	}

	return m, nil
}

func (m *watchModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, watchLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > watchMaxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-watchMaxLogEntries:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m watchModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	focusedButtonStyle := buttonStyle.
		Background(lipgloss.Color("10"))

	// Header
	s.WriteString(titleStyle.Render("RK6006 WATCH"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit tab=focus enter=apply o=output", connStatus)))
	s.WriteString("\n\n")

	if !m.everConnected {
		s.WriteString(warningStyle.Render("Connecting..."))
		s.WriteString("\n\n")
		s.WriteString(m.renderEventLog(labelStyle, errorStyle, boxStyle))
		return s.String()
	}

	// Telemetry panel | control panel
	telemetry := boxStyle.Render(m.renderTelemetry(labelStyle, valueStyle, errorStyle, warningStyle))
	control := m.renderControls(labelStyle, boxStyle, focusedBoxStyle, buttonStyle, focusedButtonStyle)
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, telemetry, " ", control))
	s.WriteString("\n\n")

	// Link statistics bar
	s.WriteString(m.renderStatsBar(labelStyle, valueStyle, errorStyle, boxStyle))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(m.renderEventLog(labelStyle, errorStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m watchModel) renderTelemetry(labelStyle, valueStyle, errorStyle, warningStyle lipgloss.Style) string {
	var s strings.Builder
	d := m.state

	output := errorStyle.Render("OFF")
	if d.OutputEnabled {
		output = valueStyle.Render("ON")
	}
	s.WriteString(fmt.Sprintf("%s %s  %s", labelStyle.Render("Output:"), output, d.Regulation))
	if d.Protection != rk6006.ProtectionNone {
		s.WriteString("  " + errorStyle.Render(fmt.Sprintf("%s TRIPPED", d.Protection)))
	}
	s.WriteString("\n\n")

	s.WriteString(fmt.Sprintf("%s %s   %s\n",
		labelStyle.Render("Out:"),
		valueStyle.Render(fmt.Sprintf("%6.2f V", d.OutputVoltage)),
		valueStyle.Render(fmt.Sprintf("%6.3f A", d.OutputCurrent))))
	s.WriteString(fmt.Sprintf("%s %s   %s\n",
		labelStyle.Render("Set:"),
		fmt.Sprintf("%6.2f V", d.SetVoltage),
		fmt.Sprintf("%6.3f A", d.SetCurrent)))
	s.WriteString(fmt.Sprintf("%s %s\n",
		labelStyle.Render("Pwr:"),
		valueStyle.Render(fmt.Sprintf("%6.2f W", d.Power))))
	s.WriteString(fmt.Sprintf("%s %6.2f V\n", labelStyle.Render("In: "), d.InputVoltage))

	temp := fmt.Sprintf("%.0f°C", d.TempInternal)
	if d.ProbeAttached {
		temp += fmt.Sprintf(" / probe %.0f°C", d.TempExternal)
	}
	s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Tmp:"), temp))
	s.WriteString(fmt.Sprintf("%s %.3f Ah  %.3f Wh\n", labelStyle.Render("Acc:"), d.AmpHours, d.WattHours))

	if d.BatteryMode {
		s.WriteString(warningStyle.Render(fmt.Sprintf("Battery mode, %.2f V\n", d.BatteryVoltage)))
	}

	return s.String()
}

func (m watchModel) renderControls(labelStyle, boxStyle, focusedBoxStyle, buttonStyle, focusedButtonStyle lipgloss.Style) string {
	var s strings.Builder

	voltageBox := boxStyle
	if m.focusedField == focusVoltageInput {
		voltageBox = focusedBoxStyle
	}
	currentBox := boxStyle
	if m.focusedField == focusCurrentInput {
		currentBox = focusedBoxStyle
	}

	s.WriteString(voltageBox.Render(fmt.Sprintf("%s %s", labelStyle.Render("Voltage"), m.voltageInput.View())))
	s.WriteString("\n")
	s.WriteString(currentBox.Render(fmt.Sprintf("%s %s", labelStyle.Render("Current"), m.currentInput.View())))
	s.WriteString("\n\n")

	btnText := "[ Output ON ]"
	if m.state.OutputEnabled {
		btnText = "[ Output OFF ]"
	}
	if m.focusedField == focusOutputButton {
		s.WriteString(focusedButtonStyle.Render(btnText))
	} else {
		s.WriteString(buttonStyle.Render(btnText))
	}

	return s.String()
}

func (m watchModel) renderStatsBar(labelStyle, valueStyle, errorStyle, boxStyle lipgloss.Style) string {
	st := m.stats

	parts := []string{
		fmt.Sprintf("%s %s", labelStyle.Render("Requests:"), valueStyle.Render(fmt.Sprintf("%d", st.Sends))),
		fmt.Sprintf("%s %s", labelStyle.Render("Responses:"), valueStyle.Render(fmt.Sprintf("%d", st.Responses))),
		fmt.Sprintf("%s %.1f/s", labelStyle.Render("Rate:"), st.RequestRate),
	}
	if st.Retries > 0 || st.Timeouts > 0 {
		parts = append(parts, fmt.Sprintf("%s %s", labelStyle.Render("Retries:"),
			errorStyle.Render(fmt.Sprintf("%d (%d timeouts)", st.Retries, st.Timeouts))))
	}
	if st.CodecErrors > 0 {
		parts = append(parts, fmt.Sprintf("%s %s", labelStyle.Render("CRC errors:"),
			errorStyle.Render(fmt.Sprintf("%d", st.CodecErrors))))
	}
	if st.Disconnects > 0 {
		parts = append(parts, fmt.Sprintf("%s %d", labelStyle.Render("Disconnects:"), st.Disconnects))
	}

	return boxStyle.Render(strings.Join(parts, "  "))
}

func (m watchModel) renderEventLog(labelStyle, errorStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder

	s.WriteString(labelStyle.Render("Events"))
	s.WriteString("\n")

	if len(m.eventLog) == 0 {
		s.WriteString("  (none)\n")
	}
	for _, entry := range m.eventLog {
		line := fmt.Sprintf("  %s %s", entry.timestamp.Format("15:04:05"), entry.message)
		if entry.isError {
			line = errorStyle.Render(line)
		}
		s.WriteString(line)
		s.WriteString("\n")
	}

	return boxStyle.Render(s.String())
}
