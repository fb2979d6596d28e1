package sqlinline

const QInsertJob = `--sql 8cacbb66-4504-45d2-bcd9-5009ba7827da
insert into jobs (id, user_id, tool, status, payload_json, credits_reserved, provider_ref)
values ($1, $2, $3, $4, $5, $6, $7);
`

const QSelectJobByID = `--sql f08c185b-d32a-4e6d-bfbe-6c668262ce12
select id, user_id, tool, status, payload_json, credits_reserved,
       coalesce(result_uri, ''), coalesce(error_message, ''), coalesce(provider_ref, ''),
       created_at, updated_at
from jobs
where id = $1;
`

const QSelectActiveJob = `--sql 70866745-3694-4e47-93a8-6e724d72181c
select id, user_id, tool, status, payload_json, credits_reserved,
       coalesce(result_uri, ''), coalesce(error_message, ''), coalesce(provider_ref, ''),
       created_at, updated_at
from jobs
where user_id = $1
  and tool = $2
  and status in ('queued', 'processing')
order by created_at desc
limit 1;
`

const QSetJobProviderRef = `--sql d33d6aae-eb6b-4843-ad8b-570c9de371ff
update jobs
set provider_ref = $2,
    updated_at = now()
where id = $1;
`

const QTransitionJob = `--sql 67f1ebc2-93c9-4851-9a3f-09d4efe71aee
update jobs
set status = $2,
    result_uri = coalesce(nullif($3, ''), result_uri),
    error_message = coalesce(nullif($4, ''), error_message),
    updated_at = now()
where id = $1
  and status = any($5);
`

const QSelectJobStatus = `--sql 6a8b63e9-d1f4-40e0-aceb-9d4027aa3290
select status from jobs where id = $1;
`

const QDiscardJob = `--sql b39835ed-10e9-4568-9a2f-b7651e01573e
delete from jobs
where id = $1
  and status = 'queued';
`

const QSelectStaleJobs = `--sql 90e0d685-c87a-49ff-82a1-b7b6c03bffd4
select id, user_id, tool, status, payload_json, credits_reserved,
       coalesce(result_uri, ''), coalesce(error_message, ''), coalesce(provider_ref, ''),
       created_at, updated_at
from jobs
where tool = $1
  and status in ('queued', 'processing')
  and created_at < $2
order by created_at asc
limit $3;
`
