package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/prop.go/pkg/fleet"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoSelect  bool

	Shell    *ishell.Shell
	Config   *fleet.Config
	Client   *fleet.Client
	DeviceID string
}

const (
	shellKey         = "$shell"
	unselectedPrompt = "[none] > "
	defaultWatchTime = 10 * time.Second
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&DiscoverCmd,
		&SelectCmd,
		&UnselectCmd,
		&ResetCmd,
		&SendCmd,
		&StatusCmd,
		&WatchCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *fleet.Config, client *fleet.Client) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
		Client: client,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unselectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeSelected wraps command func requires a selected prop.
func MustBeSelected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).DeviceID == "" {
			c.Err(fmt.Errorf("no prop selected"))
			return
		}
		fn(c)
	}
}

// FormatInfo prints PropInfo into friendly string for display.
func FormatInfo(info fleet.PropInfo) string {
	return fmt.Sprintf("%s: %s", info.DeviceID, info.Status)
}

// WithAutoSelect sets AutoSelect.
func (s *Shell) WithAutoSelect(en bool) *Shell {
	s.AutoSelect = en
	return s
}

// SelectProp discovers props and asks for a choice.
func (s *Shell) SelectProp(filter func(fleet.PropInfo) bool) (*fleet.PropInfo, error) {
	infoList, err := s.Client.Discover(context.TODO())
	if err != nil {
		return nil, err
	}
	if filter != nil {
		items := make([]fleet.PropInfo, 0, len(infoList))
		for _, info := range infoList {
			if filter(info) {
				items = append(items, info)
			}
		}
		infoList = items
	}
	if len(infoList) == 0 {
		return nil, nil
	}
	var index int
	if len(infoList) > 1 {
		if !s.Interactive {
			return nil, fmt.Errorf("more than 1 props discovered in non-interactive mode")
		}
		items := make([]string, len(infoList))
		for n, info := range infoList {
			items[n] = FormatInfo(info)
		}
		index = s.Shell.MultiChoice(items, "Which one to select?")
	}
	return &infoList[index], nil
}

// Select selects the prop commands apply to.
func (s *Shell) Select(deviceID string) {
	s.DeviceID = deviceID
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", deviceID))
}

// Unselect clears the selection.
func (s *Shell) Unselect() {
	s.DeviceID = ""
	s.Shell.SetPrompt(unselectedPrompt)
}

// Print prints v as JSON in JSON mode, or text otherwise.
func (s *Shell) Print(c *ishell.Context, v any, text string) {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(text)
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if err := s.Client.Connect(); err != nil {
		log.Fatalf("connect %s failed: %v", s.Config.BrokerURL, err)
	}
	defer s.Client.Close()
	if s.AutoSelect && s.Config.DeviceID != "" {
		s.Select(s.Config.DeviceID)
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// DiscoverCmd lists props with their retained status.
	DiscoverCmd = ishell.Cmd{
		Name:    "discover",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			infoList, err := s.Client.Discover(context.TODO())
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				s.Print(c, infoList, "")
				return
			}
			if len(infoList) == 0 {
				c.Println("No props found")
				return
			}
			for _, info := range infoList {
				c.Println(FormatInfo(info))
			}
		},
	}

	// SelectCmd selects a prop.
	SelectCmd = ishell.Cmd{
		Name:    "select",
		Aliases: []string{"s"},
		Help:    "[DEVICE-ID]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) >= 1 {
				s.Select(c.Args[0])
				return
			}
			info, err := s.SelectProp(fleet.PropInfo.Online)
			if err != nil {
				c.Err(err)
				return
			}
			if info == nil {
				c.Err(fmt.Errorf("no prop online"))
				return
			}
			s.Select(info.DeviceID)
		},
	}

	// UnselectCmd clears the selection.
	UnselectCmd = ishell.Cmd{
		Name:    "unselect",
		Aliases: []string{"u"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Unselect()
		},
	}

	// ResetCmd resets the selected prop.
	ResetCmd = ishell.Cmd{
		Name:    "reset",
		Aliases: []string{"r"},
		Help:    "",
		Func: MustBeSelected(func(c *ishell.Context) {
			s := ShellFrom(c)
			if err := s.Client.Reset(s.DeviceID); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// SendCmd sends a command payload to the selected prop.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"cmd"},
		Help:    "PAYLOAD",
		Func: MustBeSelected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("PAYLOAD required"))
				return
			}
			s := ShellFrom(c)
			if err := s.Client.Send(s.DeviceID, strings.Join(c.Args, " ")); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// StatusCmd shows the retained status of the selected prop.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "",
		Func: MustBeSelected(func(c *ishell.Context) {
			s := ShellFrom(c)
			info, err := s.SelectProp(func(info fleet.PropInfo) bool {
				return info.DeviceID == s.DeviceID
			})
			if err != nil {
				c.Err(err)
				return
			}
			if info == nil {
				info = &fleet.PropInfo{DeviceID: s.DeviceID, Status: "unknown"}
			}
			s.Print(c, info, FormatInfo(*info))
		}),
	}

	// WatchCmd prints status and log lines for a while.
	WatchCmd = ishell.Cmd{
		Name:    "watch",
		Aliases: []string{"w"},
		Help:    "[SECONDS]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			dur := defaultWatchTime
			if len(c.Args) > 0 {
				secs, err := strconv.Atoi(c.Args[0])
				if err != nil {
					c.Err(fmt.Errorf("Invalid SECONDS: %v", err))
					return
				}
				dur = time.Duration(secs) * time.Second
			}
			deviceID := s.DeviceID
			if deviceID == "" {
				deviceID = "+"
			}
			msgCh := make(chan fleet.Message, 64)
			err := s.Client.Watch(deviceID, func(msg fleet.Message) {
				select {
				case msgCh <- msg:
				default:
				}
			})
			if err != nil {
				c.Err(err)
				return
			}
			timeout := time.After(dur)
			for {
				select {
				case msg := <-msgCh:
					s.Print(c, msg, fmt.Sprintf("%s/%s: %s", msg.DeviceID, msg.SubTopic, msg.Payload))
				case <-timeout:
					return
				}
			}
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	conf := fleet.NewConfig()
	New(conf, conf.MustNewClient()).WithAutoSelect(true).Run(flag.Args()...)
}
