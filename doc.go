// Package valueflow values resources in an economic network and distributes
// income back to the people whose contributions created it.
//
// The network is REA style: agents take part in events, events link
// resources to the processes that produce or consume them and to the
// exchanges that buy or sell them. Valueflow is a library, not a service.
// It reads the network through a store and answers two questions:
//
//   - What is a resource worth, given everything that went into producing
//     or acquiring it? See [Engine.RollUpValue].
//   - When money arrives, how much of it does each contributor deserve?
//     See [Engine.RunValueEquation].
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/valueflow"
//	    "github.com/xraph/valueflow/store/memory"
//	)
//
//	vf := valueflow.New(memory.New())
//	if err := vf.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer vf.Stop()
//
//	rollup, err := vf.RollUpValue(ctx, resourceID, nil)
//
// # Value Equations
//
// A value equation splits a distribution into buckets. Each bucket takes a
// percentage either of the whole amount (straight) or of what earlier
// buckets left (remaining). A bucket pays one fixed agent, or gathers
// contributions through a filter method and pays them through claims:
//
//	ve := &valueequation.ValueEquation{
//	    Name:               "Project income",
//	    ContextAgent:       projectID,
//	    PercentageBehavior: valueequation.Straight,
//	    Buckets: []valueequation.Bucket{{
//	        Name:         "Contributors",
//	        Sequence:     1,
//	        Percentage:   decimal.NewFromInt(100),
//	        FilterMethod: valueequation.FilterProcess,
//	        Rules: []valueequation.BucketRule{{
//	            EventType:             graph.EventWork,
//	            ClaimCreationEquation: "quantity * 25",
//	            ClaimRuleType:         claim.DebtLike,
//	        }},
//	    }},
//	}
//
// Claim equations are arithmetic over quantity, value, valuePerUnit,
// valuePerUnitOfUse and pricePerUnit. They are parsed, never executed.
//
// # Claims
//
// A claim is raised the first time a contribution is paid through a rule and
// persists across runs. Debt-like claims shrink as they are paid, once
// claims are spent by their first payment and equity-like claims never
// shrink. Every change is an append-only claim event.
//
// # Concurrency
//
// Rollups may run concurrently; the cached value per unit is recomputed from
// scratch every time. Distribution runs mutate claims and are serialized per
// context agent through a [lock.Locker], in process by default or across
// processes with Redis.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	res_01h2xcejqtf2nbrexx3vqjhp41   // Resource ID
//	clm_01h2xcejqtf2nbrexx3vqjhp41   // Claim ID
//	dist_01h455vb4pex5vsknk084sn02q  // Distribution ID
package valueflow
