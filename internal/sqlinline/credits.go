package sqlinline

const QReserveCredits = `--sql f717dd0a-b1aa-41dd-b86c-e7299c07fc6b
update users
set credits = credits - $2,
    updated_at = now()
where id = $1
  and credits >= $2
returning credits;
`

const QRefundCredits = `--sql fe4cc4c4-ef1a-483c-9d6b-23adbe44ecfd
update users
set credits = credits + $2,
    updated_at = now()
where id = $1
returning credits;
`

const QSelectCreditBalance = `--sql 84a3ce4e-df64-4927-8b04-1644bf6f18ad
select credits from users where id = $1;
`

const QInsertCreditEvent = `--sql 37c03bc0-41bb-4b9c-965c-d446d4833fef
insert into credit_events (id, user_id, delta, reason)
values ($1, $2, $3, $4);
`
