package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"distline/internal/app"
	"distline/internal/board"
	"distline/internal/domain"
	"distline/internal/engine"
	"distline/internal/repo"
	"distline/internal/zones"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func parseRef(variant, id string) (domain.ItemRef, error) {
	v, err := domain.ParseVariant(variant)
	if err != nil {
		return domain.ItemRef{}, err
	}
	n, err := parseID(id)
	if err != nil {
		return domain.ItemRef{}, err
	}
	return domain.ItemRef{Variant: v, ID: n}, nil
}

func boardService(a *app.App) board.Service {
	mgr := zones.NewManager(a.Engine, a.Config.Board.Zones, a.Engine.Log)
	return board.Service{Store: a.Engine, Zones: mgr, Config: a.Config}
}

func printScheduleViews(list []board.ScheduleView) error {
	if viper.GetBool("json") {
		return printJSON(list)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Group", "State", "Date", "Production", "Customers", "Orders", "Returns", "Order total", "Return total"})
	for _, v := range list {
		s, agg := v.Schedule, v.Aggregate
		tw.AppendRow(table.Row{
			s.ID, s.GroupID, v.State, deref(s.ScheduledDate), derefInt(s.ProductionNumber), agg.UniqueCustomers,
			fmt.Sprintf("%d/%d", agg.CompletedOrders, agg.TotalOrders),
			fmt.Sprintf("%d/%d", agg.CompletedReturns, agg.TotalReturns),
			agg.OrderTotal.StringFixed(2), agg.ReturnTotal.StringFixed(2),
		})
	}
	tw.Render()
	return nil
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func derefInt(n *int64) string {
	if n == nil {
		return "-"
	}
	return strconv.FormatInt(*n, 10)
}

func boardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Show zones, dated lines and the unassigned pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				view, err := boardService(a).Board(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(view)
				}
				tw := newTable()
				tw.SetTitle("Zones")
				tw.AppendHeader(table.Row{"Zone", "Pinned", "Schedule", "Customers", "Orders", "Returns"})
				for _, z := range view.Zones {
					if z.Line == nil {
						tw.AppendRow(table.Row{z.Index, z.Pinned, "-", "", "", ""})
						continue
					}
					agg := z.Line.Aggregate
					tw.AppendRow(table.Row{z.Index, z.Pinned, z.Line.Schedule.ID, agg.UniqueCustomers, agg.TotalOrders, agg.TotalReturns})
				}
				tw.Render()
				if len(view.Schedules) > 0 {
					if err := printScheduleViews(view.Schedules); err != nil {
						return err
					}
				}
				pool := newTable()
				pool.SetTitle("Pool")
				pool.AppendHeader(table.Row{"Item", "Customer", "City", "Amount", "Agent"})
				for _, iv := range view.Pool {
					pool.AppendRow(table.Row{iv.Item.Ref().String(), iv.Customer.Name, iv.Customer.City, iv.Item.Amount.StringFixed(2), iv.Item.AgentID})
				}
				pool.Render()
				return nil
			})
		},
	}
}

func scheduleCmd() *cobra.Command {
	sc := &cobra.Command{Use: "schedule", Short: "Manage schedules"}

	var state string
	list := &cobra.Command{
		Use:   "list",
		Short: "List visible schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				views, err := boardService(a).Schedules(ctx, actor, domain.ScheduleState(state))
				if err != nil {
					return err
				}
				return printScheduleViews(views)
			})
		},
	}
	list.Flags().StringVar(&state, "state", "", "unscheduled, scheduled or produced")
	sc.AddCommand(list)

	sc.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one schedule with its aggregate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				v, err := boardService(a).Schedule(ctx, actor, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	})

	var group string
	create := &cobra.Command{
		Use:   "create",
		Short: "Get or create the open schedule of a group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				s, err := a.Engine.CreateSchedule(ctx, actor, group)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	create.Flags().StringVar(&group, "group", "", "group id")
	_ = create.MarkFlagRequired("group")
	sc.AddCommand(create)

	sc.AddCommand(&cobra.Command{
		Use:   "date <id> <YYYY-MM-DD>",
		Short: "Set or move the scheduled date",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			date := args[1]
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				s, err := a.Engine.SetScheduledDate(ctx, actor, id, &date)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	})

	sc.AddCommand(&cobra.Command{
		Use:   "driver <id> [driver]",
		Short: "Assign a driver. Without a driver it is cleared",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var driver *string
			if len(args) == 2 {
				driver = optionalString(args[1])
			}
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				s, err := a.Engine.SetDriver(ctx, actor, id, driver)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	})

	var unpin bool
	pin := &cobra.Command{
		Use:   "pin <id>",
		Short: "Pin a schedule to the front of the zone strip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				s, err := a.Engine.SetPinned(ctx, actor, id, !unpin)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	pin.Flags().BoolVar(&unpin, "off", false, "unpin instead")
	sc.AddCommand(pin)

	sc.AddCommand(&cobra.Command{
		Use:   "produce <id>",
		Short: "Assign the next production number and complete member items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				res, err := a.Engine.Produce(ctx, actor, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("schedule %d produced as #%s, %d items completed\n", id, derefInt(res.Schedule.ProductionNumber), res.Completed)
				for _, w := range res.Warnings {
					fmt.Printf("  warning: %s: %s\n", w.Item, w.Message)
				}
				return nil
			})
		},
	})

	sc.AddCommand(&cobra.Command{
		Use:   "reset <id>",
		Short: "Detach every item from an unscheduled schedule and delete it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				if err := a.Engine.ResetSchedule(ctx, actor, id); err != nil {
					return err
				}
				fmt.Printf("schedule %d reset\n", id)
				return nil
			})
		},
	})
	return sc
}

func itemCmd() *cobra.Command {
	ic := &cobra.Command{Use: "item", Short: "Manage orders and returns"}

	var (
		in         engine.ItemInput
		variant    string
		amount     string
		scheduleID int64
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an order or a return",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := domain.ParseVariant(variant)
			if err != nil {
				return err
			}
			in.Variant = v
			if in.Amount, err = decimal.NewFromString(amount); err != nil {
				return fmt.Errorf("invalid amount %q", amount)
			}
			if scheduleID > 0 {
				in.PrimaryScheduleID = &scheduleID
			}
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				it, err := a.Engine.CreateItem(ctx, actor, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	create.Flags().StringVar(&variant, "variant", "order", "order or return")
	create.Flags().StringVar(&in.CustomerName, "customer", "", "customer name")
	create.Flags().StringVar(&in.City, "city", "", "city")
	create.Flags().StringVar(&in.Address, "address", "", "address")
	create.Flags().StringVar(&in.Phone, "phone", "", "phone")
	create.Flags().StringVar(&in.Remark, "remark", "", "remark")
	create.Flags().StringVar(&amount, "amount", "0", "amount")
	create.Flags().StringVar(&in.AgentID, "agent", "", "owning agent (default: the caller)")
	create.Flags().Int64Var(&scheduleID, "schedule", 0, "primary schedule id")
	create.Flags().BoolVar(&in.AlertFlag, "alert", false, "alert flag")
	create.Flags().BoolVar(&in.MessageFlag, "message", false, "message flag")
	_ = create.MarkFlagRequired("customer")
	_ = create.MarkFlagRequired("city")
	ic.AddCommand(create)

	var (
		filters     repo.ItemFilters
		listVariant string
		listSched   int64
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List items",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listVariant != "" {
				v, err := domain.ParseVariant(listVariant)
				if err != nil {
					return err
				}
				filters.Variant = v
			}
			if listSched > 0 {
				filters.PrimaryScheduleID = &listSched
			}
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				items, err := a.Engine.ListItems(ctx, filters)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Item", "Customer", "City", "Amount", "Agent", "Schedule", "Transfer", "Done"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.Ref().String(), it.CustomerName, it.City, it.Amount.StringFixed(2), it.AgentID, derefInt(it.PrimaryScheduleID), it.Transfer.Kind().String(), it.Completed()})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&listVariant, "variant", "", "order or return")
	list.Flags().Int64Var(&listSched, "schedule", 0, "primary schedule id")
	list.Flags().StringVar(&filters.AgentID, "agent", "", "owning agent")
	list.Flags().BoolVar(&filters.Unassigned, "unassigned", false, "only items without a primary schedule")
	list.Flags().BoolVar(&filters.IncludeCancelled, "all", false, "include cancelled items")
	ic.AddCommand(list)

	var (
		moveTo int64
		toPool bool
	)
	move := &cobra.Command{
		Use:   "move <variant> <id>",
		Short: "Set the primary schedule of an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0], args[1])
			if err != nil {
				return err
			}
			if (moveTo > 0) == toPool {
				return fmt.Errorf("exactly one of --schedule or --pool is required")
			}
			var target *int64
			if moveTo > 0 {
				target = &moveTo
			}
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				it, err := a.Engine.MoveItem(ctx, actor, ref, target)
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	move.Flags().Int64Var(&moveTo, "schedule", 0, "destination schedule id")
	move.Flags().BoolVar(&toPool, "pool", false, "return the item to the unassigned pool")
	ic.AddCommand(move)

	var (
		transferTo int64
		appendList bool
	)
	transfer := &cobra.Command{
		Use:   "transfer <variant> <id>",
		Short: "Send an item to another schedule without changing its primary",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0], args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				it, err := a.Engine.TransferItem(ctx, actor, ref, transferTo, appendList)
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	transfer.Flags().Int64Var(&transferTo, "schedule", 0, "target schedule id")
	transfer.Flags().BoolVar(&appendList, "append", false, "add to a list reference instead of replacing")
	_ = transfer.MarkFlagRequired("schedule")
	ic.AddCommand(transfer)

	var (
		customer, city, address, phone, remark, newAmount string
		alert, message                                    bool
	)
	update := &cobra.Command{
		Use:   "update <variant> <id>",
		Short: "Edit item details",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0], args[1])
			if err != nil {
				return err
			}
			var patch engine.ItemPatch
			flags := cmd.Flags()
			if flags.Changed("customer") {
				patch.CustomerName = &customer
			}
			if flags.Changed("city") {
				patch.City = &city
			}
			if flags.Changed("address") {
				patch.Address = &address
			}
			if flags.Changed("phone") {
				patch.Phone = &phone
			}
			if flags.Changed("remark") {
				patch.Remark = &remark
			}
			if flags.Changed("amount") {
				d, err := decimal.NewFromString(newAmount)
				if err != nil {
					return fmt.Errorf("invalid amount %q", newAmount)
				}
				patch.Amount = &d
			}
			if flags.Changed("alert") {
				patch.AlertFlag = &alert
			}
			if flags.Changed("message") {
				patch.MessageFlag = &message
			}
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				it, err := a.Engine.UpdateItem(ctx, actor, ref, patch)
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	update.Flags().StringVar(&customer, "customer", "", "customer name")
	update.Flags().StringVar(&city, "city", "", "city")
	update.Flags().StringVar(&address, "address", "", "address")
	update.Flags().StringVar(&phone, "phone", "", "phone")
	update.Flags().StringVar(&remark, "remark", "", "remark")
	update.Flags().StringVar(&newAmount, "amount", "", "amount")
	update.Flags().BoolVar(&alert, "alert", false, "alert flag")
	update.Flags().BoolVar(&message, "message", false, "message flag")
	ic.AddCommand(update)

	ic.AddCommand(&cobra.Command{
		Use:   "done <variant> <id>",
		Short: "Mark an item done",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0], args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				it, err := a.Engine.MarkItemDone(ctx, actor, ref)
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	})

	ic.AddCommand(&cobra.Command{
		Use:   "cancel <variant> <id>",
		Short: "Cancel an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0], args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				it, err := a.Engine.CancelItem(ctx, actor, ref)
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	})
	return ic
}

func directiveCmd() *cobra.Command {
	dc := &cobra.Command{Use: "directive", Short: "Manage replacement directives"}

	var d domain.ReplacementDirective
	set := &cobra.Command{
		Use:   "set <variant> <id>",
		Short: "Substitute the customer identity of an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0], args[1])
			if err != nil {
				return err
			}
			d.Variant, d.ItemID = ref.Variant, ref.ID
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				out, err := a.Engine.SetReplacement(ctx, actor, d)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	set.Flags().StringVar(&d.CustomerName, "customer", "", "replacement customer name")
	set.Flags().StringVar(&d.City, "city", "", "replacement city")
	set.Flags().StringVar(&d.Address, "address", "", "replacement address")
	set.Flags().StringVar(&d.Phone, "phone", "", "replacement phone")
	set.Flags().BoolVar(&d.ExistsInSystem, "exists", false, "the replacement customer already exists")
	_ = set.MarkFlagRequired("customer")
	dc.AddCommand(set)

	dc.AddCommand(&cobra.Command{
		Use:   "clear <variant> <id>",
		Short: "Remove the directive of an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0], args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				if err := a.Engine.ClearReplacement(ctx, actor, ref); err != nil {
					return err
				}
				fmt.Printf("directive for %s cleared\n", ref)
				return nil
			})
		},
	})

	dc.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List directives",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				list, err := a.Engine.ListDirectives(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(list)
			})
		},
	})
	return dc
}

func groupCmd() *cobra.Command {
	gc := &cobra.Command{Use: "group", Short: "Manage groups and agent authorizations"}

	var id, label string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				g, err := a.Engine.CreateGroup(ctx, actor, id, label)
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	create.Flags().StringVar(&id, "id", "", "group id")
	create.Flags().StringVar(&label, "label", "", "label")
	_ = create.MarkFlagRequired("id")
	gc.AddCommand(create)

	gc.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				groups, err := a.Engine.ListGroups(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(groups)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Label", "Agents"})
				for _, g := range groups {
					tw.AppendRow(table.Row{g.ID, g.Label, len(g.AgentIDs)})
				}
				tw.Render()
				return nil
			})
		},
	})

	gc.AddCommand(&cobra.Command{
		Use:   "authorize <group> <agent>",
		Short: "Authorize an agent on a group, registering the agent if needed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				g, err := a.Engine.AuthorizeAgent(ctx, actor, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	})
	return gc
}

func actorCmd() *cobra.Command {
	ac := &cobra.Command{Use: "actor", Short: "Manage actors"}
	ac.AddCommand(&cobra.Command{
		Use:   "set-role <actor> <role>",
		Short: "Register an actor or change its role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := domain.ParseRole(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				out, err := a.Engine.SetActorRole(ctx, actor, args[0], role)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	})
	return ac
}

func apiKeyCmd() *cobra.Command {
	kc := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var owner, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key. The key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				key, err := a.Engine.CreateAPIKey(ctx, actor, owner, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(key)
				}
				fmt.Printf("api key for %s: %s\n", key.ActorID, key.Key)
				return nil
			})
		},
	}
	create.Flags().StringVar(&owner, "owner", "", "owning actor (default: the caller)")
	create.Flags().StringVar(&name, "name", "", "key name")

	var listOwner string
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				keys, err := a.Engine.ListAPIKeys(ctx, actor, listOwner)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&listOwner, "owner", "", "only keys of this actor")

	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, a *app.App, actor domain.Actor) error {
				if err := a.Engine.RevokeAPIKey(ctx, actor, args[0]); err != nil {
					return err
				}
				fmt.Printf("revoked %s\n", args[0])
				return nil
			})
		},
	}
	kc.AddCommand(create, list, revoke)
	return kc
}
