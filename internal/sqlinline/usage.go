package sqlinline

const QInsertUsageEvent = `--sql 3616678e-9fc1-413f-b3b9-a8e6f5b310b6
insert into usage_events (id, user_id, tool, success, error_code, latency_ms, country)
values ($1, $2, $3, $4, $5, $6, $7);
`

const QUsageSummary = `--sql b76fbffc-a2ed-47f2-95bf-483cd7beef06
select tool,
       count(*),
       count(*) filter (where success)
from usage_events
where created_at >= $1
group by tool
order by tool;
`
